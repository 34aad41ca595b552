package devicecore

import "github.com/mikey-austin/playsync/pkg/ps"

// Player is the local audio engine. Implementations must not call back into
// the session from inside these methods; autonomous changes such as a track
// ending are reported later through Session.OnLocalPlayerChanged.
type Player interface {
	Play() error
	Pause() error
	Stop() error
	// Seek moves to a fraction in [0,1] of the current track.
	Seek(fraction float64) error
	SetVolume(volume float64) error
	SetMuted(muted bool) error
	SetShuffle(shuffle bool) error
	SetRepeat(mode ps.RepeatMode) error
	SkipNext() error
	SkipPrevious() error
	// SetQueue replaces the playlist. The current item keeps playing when
	// it is still at position.
	SetQueue(items []ps.QueueItem, position int) error
	Snapshot() PlayerSnapshot
}

// PlayerSnapshot is what the player reports about itself.
type PlayerSnapshot struct {
	Track         *ps.Track
	QueuePosition int
	Position      float64
	Duration      float64
	IsPlaying     bool
	Volume        float64
	Muted         bool
	Shuffle       bool
	Repeat        ps.RepeatMode
}
