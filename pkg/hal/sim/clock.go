package sim

import (
	"sync"
	"time"
)

// Clock is a virtual clock. Every call to Now advances it by Step, so busy
// polling loops make progress without real time passing.
type Clock struct {
	Step time.Duration

	lock  sync.Mutex
	start time.Time
	now   time.Time
}

// NewClock creates a Clock advancing by step on each reading.
func NewClock(step time.Duration) *Clock {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Clock{Step: step, start: start, now: start}
}

// Now implements hal.Clock.
func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Sleep implements hal.Clock.
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.lock.Lock()
	c.now = c.now.Add(d)
	c.lock.Unlock()
}

// Elapsed returns the virtual time passed since creation.
func (c *Clock) Elapsed() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now.Sub(c.start)
}
