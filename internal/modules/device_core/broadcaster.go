package devicecore

import (
	"math"
	"time"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// Broadcast defaults.
const (
	DefaultBroadcastInterval = 5 * time.Second
	DefaultSeekJumpThreshold = 2.0
)

type sendFunc func(msgType ps.MessageType, payload any)

type afterFunc func(d time.Duration, fn func()) ports.Timer

// Broadcaster publishes the audio device's state on a fixed interval and
// immediately on transitions replicas would otherwise render wrong.
type Broadcaster struct {
	send      sendFunc
	after     afterFunc
	state     func() ps.PlaybackState
	queue     func() ps.QueueUpdate
	interval  time.Duration
	threshold float64

	active bool
	gen    uint64
	timer  ports.Timer
	last   ps.PlaybackState
}

// NewBroadcaster wires a broadcaster. state and queue capture the local
// snapshot at call time.
func NewBroadcaster(send sendFunc, after afterFunc, state func() ps.PlaybackState, queue func() ps.QueueUpdate, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &Broadcaster{
		send:      send,
		after:     after,
		state:     state,
		queue:     queue,
		interval:  interval,
		threshold: DefaultSeekJumpThreshold,
	}
}

// Active reports whether the broadcaster is running.
func (b *Broadcaster) Active() bool {
	return b.active
}

// Start emits a snapshot and the queue, then schedules periodic snapshots.
// Snapshots keep flowing while the player is idle, since the hub ends the
// session of an audio device that goes quiet. Starting an active
// broadcaster is a no-op.
func (b *Broadcaster) Start() {
	if b.active {
		return
	}
	b.active = true
	b.gen++
	b.emitQueue()
	b.emit()
}

// Stop emits one final non-playing snapshot and ceases. Stopping an inactive
// broadcaster is a no-op.
func (b *Broadcaster) Stop() {
	if !b.active {
		return
	}
	final := b.state()
	final.IsPlaying = false
	b.halt()
	b.last = final
	b.send(ps.MsgState, final)
}

// Halt ceases without a final snapshot, for when the channel is gone.
func (b *Broadcaster) Halt() {
	if !b.active {
		return
	}
	b.halt()
}

// OnLocalPlayerChanged emits immediately on play/pause, track or queue
// position changes, and on position jumps larger than the seek threshold.
func (b *Broadcaster) OnLocalPlayerChanged() {
	if !b.active {
		return
	}
	next := b.state()
	if b.significant(next) {
		b.emit()
	}
}

// QueueChanged publishes the queue after a local mutation and a fresh
// snapshot carrying the new queue version.
func (b *Broadcaster) QueueChanged() {
	if !b.active {
		return
	}
	b.emitQueue()
	b.emit()
}

func (b *Broadcaster) significant(next ps.PlaybackState) bool {
	last := b.last
	if next.IsPlaying != last.IsPlaying {
		return true
	}
	if trackID(next.CurrentTrack) != trackID(last.CurrentTrack) {
		return true
	}
	if next.QueuePosition != last.QueuePosition {
		return true
	}
	if next.Volume != last.Volume || next.Muted != last.Muted || next.Shuffle != last.Shuffle || next.Repeat != last.Repeat {
		return true
	}
	expected := Estimate(last, next.Timestamp)
	return math.Abs(next.Position-expected) > b.threshold
}

func (b *Broadcaster) emit() {
	state := b.state()
	b.last = state
	b.send(ps.MsgState, state)
	b.schedule()
}

func (b *Broadcaster) emitQueue() {
	b.send(ps.MsgQueueUpdate, b.queue())
}

func (b *Broadcaster) schedule() {
	if b.timer != nil {
		b.timer.Stop()
	}
	gen := b.gen
	b.timer = b.after(b.interval, func() {
		if !b.active || b.gen != gen {
			return
		}
		b.emit()
	})
}

func (b *Broadcaster) halt() {
	b.active = false
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func trackID(track *ps.Track) string {
	if track == nil {
		return ""
	}
	return track.ID
}
