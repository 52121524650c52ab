package testfixtures

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

// Clock is a controllable time source. Services read it through NowFunc, so
// moving it changes what "now" means for rule deletion and payment stamps.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc falls back to time.Now on a nil clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}

// SetLocal moves the clock to a wall-clock moment as the owner reads it.
func (c *Clock) SetLocal(date wallclock.Date, at wallclock.Clock, offset wallclock.Offset) time.Time {
	instant, err := wallclock.ToAbsolute(date, at, offset)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: clock: %v", err))
	}
	c.Set(instant)
	return instant
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
