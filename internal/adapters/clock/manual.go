package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/mikey-austin/playsync/internal/ports"
)

// Manual is a clock that only moves when told to. Timers fire in due
// order on the goroutine calling Advance.
type Manual struct {
	mu     sync.Mutex
	now    int64
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *Manual
	at      int64
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewManual creates a manual clock reading nowMS.
func NewManual(nowMS int64) *Manual {
	return &Manual{now: nowMS}
}

// NowMS returns the clock's current reading.
func (c *Manual) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn d after the current reading.
func (c *Manual) AfterFunc(d time.Duration, fn func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	timer := &manualTimer{clock: c, at: c.now + d.Milliseconds(), seq: c.seq, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock forward by d, firing every timer that comes due.
// Timers scheduled by a firing timer also fire if they fall within d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d.Milliseconds()
	c.mu.Unlock()
	for {
		c.mu.Lock()
		due := c.nextDue(target)
		if due == nil {
			c.now = target
			c.compact()
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

// Pending returns the number of timers yet to fire.
func (c *Manual) Pending() int {
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

func (c *Manual) nextDue(target int64) *manualTimer {
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at == c.timers[j].at {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at < c.timers[j].at
	})
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && timer.at <= target {
			return timer
		}
	}
	return nil
}

func (c *Manual) compact() {
	live := c.timers[:0]
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			live = append(live, timer)
		}
	}
	c.timers = live
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
