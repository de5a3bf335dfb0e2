package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime is the default start instant for test clocks.
func ReferenceTime() time.Time {
	return time.Date(2025, time.September, 15, 8, 0, 0, 0, time.UTC)
}

// Clock is a controllable time source.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// Ticking returns a time source that advances by step on every call.
func (c *Clock) Ticking(step time.Duration) func() time.Time {
	return func() time.Time {
		return c.Advance(step)
	}
}
