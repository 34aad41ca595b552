package devicecore

import (
	"encoding/json"
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

func newFakeClock(now int64) *fakeClock {
	return &fakeClock{now: now}
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

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d.Milliseconds()
	c.mu.Unlock()
	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].at == c.timers[j].at {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at < c.timers[j].at
		})
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
		if due.at > c.now {
			c.now = due.at
		}
		c.mu.Unlock()
		due.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			n++
		}
	}
	return n
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

type sentMessage struct {
	Type    ps.MessageType
	Payload any
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (c *fakeChannel) Send(msgType ps.MessageType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{Type: msgType, Payload: payload})
	return c.err
}

func (c *fakeChannel) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) ofType(msgType ps.MessageType) []sentMessage {
	out := []sentMessage{}
	for _, msg := range c.messages() {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type recorder struct {
	sent []sentMessage
}

func (r *recorder) send(msgType ps.MessageType, payload any) {
	r.sent = append(r.sent, sentMessage{Type: msgType, Payload: payload})
}

func (r *recorder) ofType(msgType ps.MessageType) []sentMessage {
	out := []sentMessage{}
	for _, msg := range r.sent {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

type fakePlayer struct {
	snap     PlayerSnapshot
	queue    []ps.QueueItem
	calls    []string
	seekTo   float64
	failPlay error
	failSet  error
	clock    *fakeClock
	startMS  int64
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{snap: PlayerSnapshot{Volume: 1, Repeat: ps.RepeatOff}}
}

func (p *fakePlayer) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) called(call string) bool {
	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

// position advances with the fake clock while playing.
func (p *fakePlayer) position() float64 {
	if p.clock == nil || !p.snap.IsPlaying {
		return p.snap.Position
	}
	return p.snap.Position + float64(p.clock.NowMS()-p.startMS)/1000
}

func (p *fakePlayer) freeze() {
	p.snap.Position = p.position()
	if p.clock != nil {
		p.startMS = p.clock.NowMS()
	}
}

func (p *fakePlayer) Play() error {
	p.record("play")
	if p.failPlay != nil {
		return p.failPlay
	}
	p.freeze()
	p.snap.IsPlaying = true
	return nil
}

func (p *fakePlayer) Pause() error {
	p.record("pause")
	p.freeze()
	p.snap.IsPlaying = false
	return nil
}

func (p *fakePlayer) Stop() error {
	p.record("stop")
	p.snap.IsPlaying = false
	p.snap.Position = 0
	return nil
}

func (p *fakePlayer) Seek(fraction float64) error {
	p.record("seek")
	p.seekTo = fraction
	p.freeze()
	p.snap.Position = fraction * p.snap.Duration
	return nil
}

func (p *fakePlayer) SetVolume(volume float64) error {
	p.record("volume")
	p.snap.Volume = volume
	return nil
}

func (p *fakePlayer) SetMuted(muted bool) error {
	p.record("muted")
	p.snap.Muted = muted
	return nil
}

func (p *fakePlayer) SetShuffle(shuffle bool) error {
	p.record("shuffle")
	p.snap.Shuffle = shuffle
	return nil
}

func (p *fakePlayer) SetRepeat(mode ps.RepeatMode) error {
	p.record("repeat")
	p.snap.Repeat = mode
	return nil
}

func (p *fakePlayer) SkipNext() error {
	p.record("next")
	p.snap.QueuePosition++
	p.setTrack()
	return nil
}

func (p *fakePlayer) SkipPrevious() error {
	p.record("prev")
	if p.snap.QueuePosition > 0 {
		p.snap.QueuePosition--
	}
	p.setTrack()
	return nil
}

func (p *fakePlayer) SetQueue(queue []ps.QueueItem, position int) error {
	p.record("setQueue")
	if p.failSet != nil {
		return p.failSet
	}
	p.queue = append([]ps.QueueItem(nil), queue...)
	p.snap.QueuePosition = position
	p.setTrack()
	return nil
}

func (p *fakePlayer) setTrack() {
	if p.snap.QueuePosition < 0 || p.snap.QueuePosition >= len(p.queue) {
		p.snap.Track = nil
		return
	}
	if p.snap.Duration == 0 {
		p.snap.Duration = 180
	}
	p.snap.Track = &ps.Track{ID: p.queue[p.snap.QueuePosition].ID, Duration: p.snap.Duration}
}

func (p *fakePlayer) Snapshot() PlayerSnapshot {
	snap := p.snap
	snap.Position = p.position()
	return snap
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return "tx-" + string(rune('a'+g.n-1))
}

func decodeAs[T any](payload any) T {
	var out T
	switch v := payload.(type) {
	case T:
		return v
	case json.RawMessage:
		_ = json.Unmarshal(v, &out)
	default:
		data, _ := json.Marshal(v)
		_ = json.Unmarshal(data, &out)
	}
	return out
}
