package simplayer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	devicecore "github.com/mikey-austin/playsync/internal/modules/device_core"
	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

// DefaultTrackDuration is used for items missing from the catalog.
const DefaultTrackDuration = 180.0

// restartThreshold is how far into a track SkipPrevious restarts it
// instead of going back.
const restartThreshold = 3.0

var (
	// ErrNothingToPlay is returned by Play with an empty queue.
	ErrNothingToPlay = errors.New("nothing to play")
	// ErrEndOfQueue is returned by SkipNext on the last item.
	ErrEndOfQueue = errors.New("end of queue")
)

// Config configures the simulated player.
type Config struct {
	TrackDuration float64
	// Catalog supplies track metadata by queue item id.
	Catalog map[string]ps.Track
}

// Player is a clock-driven stand-in for an audio engine. Position advances
// with the clock while playing and the queue advances at track end.
type Player struct {
	log   *zap.Logger
	clock ports.Clock
	cfg   Config

	mu       sync.Mutex
	queue    []ps.QueueItem
	index    int
	position float64
	startMS  int64
	playing  bool
	volume   float64
	muted    bool
	shuffle  bool
	repeat   ps.RepeatMode
	timer    ports.Timer
	notify   func()
}

// New creates a stopped player with an empty queue.
func New(log *zap.Logger, clock ports.Clock, cfg Config) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TrackDuration <= 0 {
		cfg.TrackDuration = DefaultTrackDuration
	}
	return &Player{log: log, clock: clock, cfg: cfg, volume: 1, repeat: ps.RepeatOff}
}

// SetNotify installs the callback run after autonomous changes, such as a
// track ending. It is never called from inside a Player method.
func (p *Player) SetNotify(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current() == nil {
		return ErrNothingToPlay
	}
	if p.playing {
		return nil
	}
	if p.position >= p.duration() {
		p.position = 0
	}
	p.startMS = p.clock.NowMS()
	p.playing = true
	p.schedule()
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeze()
	p.playing = false
	p.cancel()
	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.position = 0
	p.cancel()
	return nil
}

func (p *Player) Seek(fraction float64) error {
	if math.IsNaN(fraction) {
		return fmt.Errorf("invalid seek fraction")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current() == nil {
		return ErrNothingToPlay
	}
	fraction = math.Max(0, math.Min(1, fraction))
	p.position = fraction * p.duration()
	p.startMS = p.clock.NowMS()
	p.schedule()
	return nil
}

func (p *Player) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = math.Max(0, math.Min(1, volume))
	return nil
}

func (p *Player) SetMuted(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	return nil
}

// SetShuffle records the flag; the simulated queue always plays in order.
func (p *Player) SetShuffle(shuffle bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuffle = shuffle
	return nil
}

func (p *Player) SetRepeat(mode ps.RepeatMode) error {
	if _, ok := ps.ParseRepeatMode(string(mode)); !ok {
		return fmt.Errorf("invalid repeat mode %q", mode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeat = mode
	return nil
}

func (p *Player) SkipNext() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextIndex()
	if !ok {
		return ErrEndOfQueue
	}
	p.jump(next)
	return nil
}

func (p *Player) SkipPrevious() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current() == nil {
		return ErrNothingToPlay
	}
	if p.elapsed() > restartThreshold || p.index == 0 {
		p.jump(p.index)
		return nil
	}
	p.jump(p.index - 1)
	return nil
}

func (p *Player) SetQueue(items []ps.QueueItem, position int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(items) > 0 && (position < 0 || position >= len(items)) {
		return fmt.Errorf("queue position %d out of range", position)
	}
	var currentID string
	if item := p.current(); item != nil {
		currentID = item.ID
	}
	p.queue = append([]ps.QueueItem(nil), items...)
	if len(p.queue) == 0 {
		p.index = 0
		p.playing = false
		p.position = 0
		p.cancel()
		return nil
	}
	p.index = position
	if p.queue[position].ID != currentID {
		p.jump(position)
	}
	return nil
}

func (p *Player) Snapshot() devicecore.PlayerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := devicecore.PlayerSnapshot{
		QueuePosition: p.index,
		Position:      p.elapsed(),
		IsPlaying:     p.playing,
		Volume:        p.volume,
		Muted:         p.muted,
		Shuffle:       p.shuffle,
		Repeat:        p.repeat,
	}
	if item := p.current(); item != nil {
		track := p.track(item.ID)
		snap.Track = &track
		snap.Duration = track.Duration
	}
	return snap
}

func (p *Player) current() *ps.QueueItem {
	if p.index < 0 || p.index >= len(p.queue) {
		return nil
	}
	return &p.queue[p.index]
}

func (p *Player) track(id string) ps.Track {
	if track, ok := p.cfg.Catalog[id]; ok {
		track.ID = id
		if track.Duration <= 0 {
			track.Duration = p.cfg.TrackDuration
		}
		return track
	}
	return ps.Track{ID: id, Title: id, Duration: p.cfg.TrackDuration}
}

func (p *Player) duration() float64 {
	if item := p.current(); item != nil {
		return p.track(item.ID).Duration
	}
	return 0
}

func (p *Player) elapsed() float64 {
	if !p.playing {
		return p.position
	}
	pos := p.position + float64(p.clock.NowMS()-p.startMS)/1000
	return math.Min(pos, p.duration())
}

func (p *Player) freeze() {
	p.position = p.elapsed()
	p.startMS = p.clock.NowMS()
}

func (p *Player) jump(index int) {
	p.index = index
	p.position = 0
	p.startMS = p.clock.NowMS()
	if p.playing {
		p.schedule()
	}
}

func (p *Player) nextIndex() (int, bool) {
	if p.index+1 < len(p.queue) {
		return p.index + 1, true
	}
	if p.repeat == ps.RepeatAll && len(p.queue) > 0 {
		return 0, true
	}
	return 0, false
}

func (p *Player) schedule() {
	p.cancel()
	if !p.playing {
		return
	}
	remaining := p.duration() - p.elapsed()
	if remaining < 0 {
		remaining = 0
	}
	timer := new(ports.Timer)
	*timer = p.clock.AfterFunc(time.Duration(remaining*float64(time.Second)), func() {
		p.trackEnded(timer)
	})
	p.timer = *timer
}

func (p *Player) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) trackEnded(timer *ports.Timer) {
	p.mu.Lock()
	if p.timer != *timer || !p.playing {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	switch next, ok := p.nextIndex(); {
	case p.repeat == ps.RepeatOne:
		p.jump(p.index)
	case ok:
		p.jump(next)
	default:
		p.position = p.duration()
		p.playing = false
	}
	p.log.Debug("track ended", zap.Int("queue_position", p.index), zap.Bool("playing", p.playing))
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

var _ devicecore.Player = (*Player)(nil)
