package devicecore

import (
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// DefaultResyncDebounce coalesces bursts of roster desync into one hello.
const DefaultResyncDebounce = 500 * time.Millisecond

type resyncHost interface {
	applyRoster(selfID string, devices []ps.Device)
	applyReplica(state *ps.PlaybackState, queue []ps.QueueItem, version int64)
	clearReplica()
	setReclaim(info *ps.SessionInfo)
	adoptRole(audio bool)
}

// Resync rebuilds the local session from the hub after every connect. Until
// a welcome arrives every other inbound message is dropped, so nothing from
// before the disconnect gets replayed.
type Resync struct {
	log      *zap.Logger
	send     sendFunc
	after    afterFunc
	host     resyncHost
	hello    ps.Hello
	debounce time.Duration

	awaiting  bool
	welcomed  bool
	scheduled ports.Timer
}

// NewResync creates a resynchronizer that introduces itself with hello.
func NewResync(log *zap.Logger, send sendFunc, after afterFunc, host resyncHost, hello ps.Hello, debounce time.Duration) *Resync {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultResyncDebounce
	}
	return &Resync{log: log, send: send, after: after, host: host, hello: hello, debounce: debounce}
}

// Awaiting reports whether a welcome is outstanding.
func (r *Resync) Awaiting() bool {
	return r.awaiting
}

// Welcomed reports whether the current connection has been welcomed.
func (r *Resync) Welcomed() bool {
	return r.welcomed && !r.awaiting
}

// OnChannelConnected sends hello and gates inbound traffic.
func (r *Resync) OnChannelConnected() {
	r.cancelScheduled()
	r.awaiting = true
	r.welcomed = false
	r.send(ps.MsgHello, r.hello)
}

// OnChannelDisconnected resets the gate.
func (r *Resync) OnChannelDisconnected() {
	r.cancelScheduled()
	r.awaiting = false
	r.welcomed = false
}

// OnWelcome replaces roster, state and queue wholesale.
func (r *Resync) OnWelcome(w ps.Welcome) {
	r.cancelScheduled()
	r.awaiting = false
	r.welcomed = true

	r.host.applyRoster(w.DeviceID, w.Devices)
	if !w.Session.Exists {
		r.host.clearReplica()
		if w.Session.Reclaimable {
			info := w.Session
			r.host.setReclaim(&info)
		} else {
			r.host.setReclaim(nil)
		}
		r.host.adoptRole(false)
		r.log.Info("welcomed without session", zap.String("device_id", w.DeviceID), zap.Bool("reclaimable", w.Session.Reclaimable))
		return
	}
	r.host.setReclaim(nil)
	r.host.applyReplica(w.Session.State, w.Session.Queue, w.Session.QueueVersion)
	r.host.adoptRole(w.Session.AudioDeviceID != "" && w.Session.AudioDeviceID == w.DeviceID)
	r.log.Info("welcomed", zap.String("device_id", w.DeviceID), zap.String("audio_device_id", w.Session.AudioDeviceID))
}

// Schedule requests a fresh welcome after a short delay. Bursts collapse
// into one hello.
func (r *Resync) Schedule() {
	if r.awaiting || r.scheduled != nil || !r.welcomed {
		return
	}
	r.scheduled = r.after(r.debounce, func() {
		r.scheduled = nil
		if !r.welcomed || r.awaiting {
			return
		}
		r.log.Info("resynchronizing session")
		r.awaiting = true
		r.send(ps.MsgHello, r.hello)
	})
}

func (r *Resync) cancelScheduled() {
	if r.scheduled != nil {
		r.scheduled.Stop()
		r.scheduled = nil
	}
}
