package ports

import (
	"context"
	"time"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// Channel sends messages to the session hub. Send must not block for long;
// adapters queue or fail fast.
type Channel interface {
	Send(msgType ps.MessageType, payload any) error
}

// Listener receives channel lifecycle and inbound messages.
type Listener interface {
	OnConnected()
	OnDisconnected(reason string)
	OnMessage(env ps.Envelope)
}

// Transport is a channel that can be started against a listener.
type Transport interface {
	Channel
	Start(ctx context.Context, listener Listener) error
	Close() error
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock returns the current time and schedules callbacks.
type Clock interface {
	NowMS() int64
	AfterFunc(d time.Duration, fn func()) Timer
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}

// StoredSession is the last known session of a user.
type StoredSession struct {
	User         string
	State        ps.PlaybackState
	Queue        []ps.QueueItem
	QueueVersion int64
	DeviceName   string
	UpdatedAt    int64
}

// SessionStore persists the last session per user so it can be reclaimed.
type SessionStore interface {
	Load(ctx context.Context, user string) (StoredSession, bool, error)
	Save(ctx context.Context, session StoredSession) error
	Delete(ctx context.Context, user string) error
}
