package sessionhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

type fakeClock struct {
	mu     sync.Mutex
	now    int64
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      int64
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	timer := &fakeTimer{clock: c, at: c.now + d.Milliseconds(), seq: c.seq, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d.Milliseconds()
	c.mu.Unlock()
	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
		var due *fakeTimer
		for _, timer := range c.timers {
			if !timer.stopped && !timer.fired && timer.at <= target {
				due = timer
				break
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.fired = true
		c.now = due.at
		c.mu.Unlock()
		due.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("dev-%d", g.n)
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]ports.StoredSession
	saves    int
	deletes  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]ports.StoredSession{}}
}

func (s *fakeStore) Load(_ context.Context, user string) (ports.StoredSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[user]
	return stored, ok, nil
}

func (s *fakeStore) Save(_ context.Context, session ports.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.sessions[session.User] = session
	return nil
}

func (s *fakeStore) Delete(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.sessions, user)
	return nil
}

// inbox records what the hub delivered to one connection.
type inbox struct {
	mu   sync.Mutex
	envs []ps.Envelope
}

func (i *inbox) sink(env ps.Envelope) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.envs = append(i.envs, env)
	return nil
}

func (i *inbox) ofType(msgType ps.MessageType) []ps.Envelope {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := []ps.Envelope{}
	for _, env := range i.envs {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func decode[T any](env ps.Envelope) T {
	var out T
	_ = json.Unmarshal(env.Payload, &out)
	return out
}

func portsSession(user string, position float64) ports.StoredSession {
	return ports.StoredSession{
		User:         user,
		State:        ps.PlaybackState{Position: position, QueueVersion: 1},
		Queue:        []ps.QueueItem{{ID: "x"}},
		QueueVersion: 1,
	}
}
