package clock

import (
	"time"

	"github.com/mikey-austin/playsync/internal/ports"
)

// Clock provides time.Now() access.
type Clock struct{}

// NowMS returns current unix milliseconds.
func (Clock) NowMS() int64 {
	return time.Now().UnixMilli()
}

// AfterFunc schedules fn on a runtime timer.
func (Clock) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(d, fn)
}
