package testutil

import (
	"slices"
	"sync"
	"time"
)

// ManualClock is a clock that only moves when Advance is called. Timers fire
// synchronously inside Advance, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*manualTimer
}

type manualTimer struct {
	id  int
	at  time.Time
	fn  func()
	off bool
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the clock reaches now+d. The returned
// function cancels it and reports whether it was still pending.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	tm := &manualTimer{id: c.nextID, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, tm)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if tm.off {
			return false
		}
		tm.off = true
		c.timers = slices.DeleteFunc(c.timers, func(x *manualTimer) bool { return x == tm })
		return true
	}
}

// Advance moves the clock forward by d and runs every timer that became due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.nextDue(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.off = true
		c.timers = slices.DeleteFunc(c.timers, func(x *manualTimer) bool { return x == due })
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.mu.Unlock()
		due.fn()
	}
}

func (c *ManualClock) nextDue(target time.Time) *manualTimer {
	var due *manualTimer
	for _, tm := range c.timers {
		if tm.at.After(target) {
			continue
		}
		if due == nil || tm.at.Before(due.at) || (tm.at.Equal(due.at) && tm.id < due.id) {
			due = tm
		}
	}
	return due
}

// Pending returns the number of scheduled timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
