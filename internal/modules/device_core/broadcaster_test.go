package devicecore

import (
	"testing"
	"time"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

type broadcastFixture struct {
	clock  *fakeClock
	rec    *recorder
	player *fakePlayer
	queue  *Queue
	b      *Broadcaster
}

func newBroadcastFixture() *broadcastFixture {
	f := &broadcastFixture{
		clock:  newFakeClock(0),
		rec:    &recorder{},
		player: newFakePlayer(),
		queue:  &Queue{},
	}
	f.player.clock = f.clock
	_ = f.queue.Set(items("a", "b"), 0)
	_ = f.player.SetQueue(f.queue.Items(), 0)
	state := func() ps.PlaybackState {
		snap := f.player.Snapshot()
		return ps.PlaybackState{
			CurrentTrack:  snap.Track,
			QueuePosition: snap.QueuePosition,
			QueueVersion:  f.queue.Version(),
			Position:      snap.Position,
			IsPlaying:     snap.IsPlaying,
			Volume:        snap.Volume,
			Timestamp:     f.clock.NowMS(),
		}
	}
	after := func(d time.Duration, fn func()) ports.Timer { return f.clock.AfterFunc(d, fn) }
	f.b = NewBroadcaster(f.rec.send, after, state, f.queue.Update, 5*time.Second)
	return f
}

func TestBroadcasterStartEmitsImmediately(t *testing.T) {
	f := newBroadcastFixture()
	f.b.Start()
	if len(f.rec.ofType(ps.MsgState)) != 1 || len(f.rec.ofType(ps.MsgQueueUpdate)) != 1 {
		t.Fatalf("expected immediate state and queue, got %v", f.rec.sent)
	}
	f.b.Start()
	if len(f.rec.ofType(ps.MsgState)) != 1 {
		t.Fatalf("second start must be a no-op")
	}
}

func TestBroadcasterPeriodicInterval(t *testing.T) {
	f := newBroadcastFixture()
	_ = f.player.Play()
	f.b.Start()
	f.clock.Advance(4900 * time.Millisecond)
	if got := len(f.rec.ofType(ps.MsgState)); got != 1 {
		t.Fatalf("expected 1 state before interval, got %d", got)
	}
	f.clock.Advance(100 * time.Millisecond)
	if got := len(f.rec.ofType(ps.MsgState)); got != 2 {
		t.Fatalf("expected 2 states at interval, got %d", got)
	}
	f.clock.Advance(10 * time.Second)
	if got := len(f.rec.ofType(ps.MsgState)); got != 4 {
		t.Fatalf("expected 4 states, got %d", got)
	}
}

func TestBroadcasterImmediateOnTransitions(t *testing.T) {
	f := newBroadcastFixture()
	f.b.Start()
	f.clock.Advance(time.Second)

	_ = f.player.Play()
	f.b.OnLocalPlayerChanged()
	if got := len(f.rec.ofType(ps.MsgState)); got != 2 {
		t.Fatalf("expected emission on play, got %d", got)
	}

	f.clock.Advance(time.Second)
	f.b.OnLocalPlayerChanged()
	if got := len(f.rec.ofType(ps.MsgState)); got != 2 {
		t.Fatalf("steady playback must not emit, got %d", got)
	}

	_ = f.player.SkipNext()
	f.b.OnLocalPlayerChanged()
	if got := len(f.rec.ofType(ps.MsgState)); got != 3 {
		t.Fatalf("expected emission on track change, got %d", got)
	}

	_ = f.player.Seek(0.9)
	f.b.OnLocalPlayerChanged()
	if got := len(f.rec.ofType(ps.MsgState)); got != 4 {
		t.Fatalf("expected emission on seek jump, got %d", got)
	}
}

func TestBroadcasterStopEmitsFinalState(t *testing.T) {
	f := newBroadcastFixture()
	_ = f.player.Play()
	f.b.Start()
	f.b.Stop()
	states := f.rec.ofType(ps.MsgState)
	final := states[len(states)-1].Payload.(ps.PlaybackState)
	if final.IsPlaying {
		t.Fatalf("final state must not be playing")
	}
	f.clock.Advance(time.Minute)
	if got := len(f.rec.ofType(ps.MsgState)); got != len(states) {
		t.Fatalf("expected no emissions after stop, got %d more", got-len(states))
	}
	f.b.Stop()
	if got := len(f.rec.ofType(ps.MsgState)); got != len(states) {
		t.Fatalf("second stop must be a no-op")
	}
}

func TestBroadcasterHaltIsSilent(t *testing.T) {
	f := newBroadcastFixture()
	f.b.Start()
	before := len(f.rec.sent)
	f.b.Halt()
	f.clock.Advance(time.Minute)
	if len(f.rec.sent) != before {
		t.Fatalf("expected no emissions after halt")
	}
	if f.b.Active() {
		t.Fatalf("expected inactive")
	}
}

func TestBroadcasterRestartIgnoresOldTimer(t *testing.T) {
	f := newBroadcastFixture()
	f.b.Start()
	f.clock.Advance(2 * time.Second)
	f.b.Halt()
	f.b.Start()
	f.clock.Advance(3 * time.Second)
	if got := len(f.rec.ofType(ps.MsgState)); got != 2 {
		t.Fatalf("old timer fired after restart, got %d states", got)
	}
	f.clock.Advance(2 * time.Second)
	if got := len(f.rec.ofType(ps.MsgState)); got != 3 {
		t.Fatalf("expected restarted schedule, got %d", got)
	}
}

func TestBroadcasterQueueChanged(t *testing.T) {
	f := newBroadcastFixture()
	f.b.QueueChanged()
	if len(f.rec.sent) != 0 {
		t.Fatalf("inactive broadcaster must not emit")
	}
	f.b.Start()
	_ = f.queue.Add(items("c"), nil)
	f.b.QueueChanged()
	updates := f.rec.ofType(ps.MsgQueueUpdate)
	last := updates[len(updates)-1].Payload.(ps.QueueUpdate)
	if last.QueueVersion != f.queue.Version() || len(last.Queue) != 3 {
		t.Fatalf("unexpected queue update %+v", last)
	}
}

func TestBroadcasterKeepsReportingWhenIdle(t *testing.T) {
	f := newBroadcastFixture()
	f.b.Start()
	_ = f.player.SetQueue(nil, 0)
	f.b.OnLocalPlayerChanged()
	if got := len(f.rec.ofType(ps.MsgState)); got != 2 {
		t.Fatalf("expected a snapshot when the track cleared, got %d", got)
	}
	f.clock.Advance(15 * time.Second)
	states := f.rec.ofType(ps.MsgState)
	if len(states) != 5 {
		t.Fatalf("expected idle snapshots to continue, got %d", len(states))
	}
	last := decodeAs[ps.PlaybackState](states[len(states)-1].Payload)
	if last.CurrentTrack != nil || last.IsPlaying {
		t.Fatalf("expected idle snapshot, got %+v", last)
	}
	if !f.b.Active() {
		t.Fatalf("broadcaster stopped while the device holds the role")
	}
}
