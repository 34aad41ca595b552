package devicecore

import (
	"context"
	"time"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// Render tick rates for the interpolation loop.
const (
	DefaultListTick = 200 * time.Millisecond
	FocusedTick     = time.Second / 60
)

// Sample is the most recent snapshot a replica received. It is recomputed
// from, never written back.
type Sample struct {
	Base                ps.PlaybackState
	LocalClockAtReceipt int64
}

// Estimate extrapolates the audio device's position at nowMS. It trusts the
// audio device's timestamp, so clock offset between devices shows up as
// drift until the next snapshot replaces the base.
func Estimate(base ps.PlaybackState, nowMS int64) float64 {
	if !base.IsPlaying {
		return base.Position
	}
	elapsed := float64(nowMS-base.Timestamp) / 1000
	pos := base.Position + elapsed
	if pos < 0 {
		pos = 0
	}
	if base.CurrentTrack != nil && base.CurrentTrack.Duration > 0 && pos > base.CurrentTrack.Duration {
		pos = base.CurrentTrack.Duration
	}
	return pos
}

// Interpolator holds the replica's current sample.
type Interpolator struct {
	sample *Sample
	stale  bool
}

// Set replaces the sample and clears the stale mark.
func (i *Interpolator) Set(state ps.PlaybackState, nowMS int64) {
	i.sample = &Sample{Base: state, LocalClockAtReceipt: nowMS}
	i.stale = false
}

// Clear drops the sample.
func (i *Interpolator) Clear() {
	i.sample = nil
	i.stale = false
}

// MarkStale flags the sample as possibly outdated, e.g. while disconnected.
func (i *Interpolator) MarkStale() {
	if i.sample != nil {
		i.stale = true
	}
}

// Stale reports whether the sample predates a disconnect.
func (i *Interpolator) Stale() bool {
	return i.stale
}

// Sample returns the current sample.
func (i *Interpolator) Sample() (Sample, bool) {
	if i.sample == nil {
		return Sample{}, false
	}
	return *i.sample, true
}

// Position estimates the current position.
func (i *Interpolator) Position(nowMS int64) (float64, bool) {
	if i.sample == nil {
		return 0, false
	}
	return Estimate(i.sample.Base, nowMS), true
}

// RunTicker calls fn every interval until ctx is done. It only drives
// rendering and never touches the channel.
func RunTicker(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = DefaultListTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
