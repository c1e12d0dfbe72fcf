package clock

import (
	"sync"
	"time"
)

// Clock reads wall time unless pinned with Set. It is safe for concurrent use.
type Clock struct {
	mu     sync.RWMutex
	pinned bool
	now    time.Time
}

// New returns a clock following wall time.
func New() *Clock {
	return &Clock{}
}

// At returns a clock pinned to t.
func At(t time.Time) *Clock {
	c := &Clock{}
	c.Set(t)
	return c
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = true
	c.now = t.UTC()
}

// Advance moves a pinned clock forward by d. It is a no-op on wall time.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned {
		c.now = c.now.Add(d)
	}
}

// Sync returns the clock to wall time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
}

// Now returns the current time truncated to whole seconds, in UTC.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pinned {
		return c.now.Truncate(time.Second)
	}
	return time.Now().UTC().Truncate(time.Second)
}
