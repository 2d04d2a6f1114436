// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time moves only when Advance is
// called; timers and tickers whose deadline is reached fire during
// that call, in deadline order. AfterFunc callbacks run synchronously
// on the goroutine calling Advance and must not call Advance.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*alarm
	changed *sync.Cond
}

type alarm struct {
	deadline time.Time
	channel  chan time.Time // After and tickers
	callback func()         // AfterFunc
	period   time.Duration  // tickers only
	active   bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// schedule registers a. Must be called with c.mu held.
func (c *FakeClock) schedule(a *alarm) {
	a.active = true
	if !slices.Contains(c.pending, a) {
		c.pending = append(c.pending, a)
	}
	c.changed.Broadcast()
}

// After returns a channel ready once the clock reaches now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.schedule(&alarm{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f. If d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	a := &alarm{callback: f}
	if d <= 0 {
		f()
	} else {
		c.mu.Lock()
		a.deadline = c.now.Add(d)
		c.schedule(a)
		c.mu.Unlock()
	}
	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasActive := a.active
			a.active = false
			return wasActive
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasActive := a.active
			a.deadline = c.now.Add(d)
			c.schedule(a)
			return wasActive
		},
	}
}

// NewTicker returns a ticker driven by Advance.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	a := &alarm{channel: channel, period: d}

	c.mu.Lock()
	a.deadline = c.now.Add(d)
	c.schedule(a)
	c.mu.Unlock()

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			a.active = false
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			a.period = d
			a.deadline = c.now.Add(d)
			c.schedule(a)
		},
	}
}

// Advance moves the clock forward by d and fires everything that came
// due. A ticker whose period elapsed several times fires once per
// period; sends that find the channel full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, a := range due {
			if a.callback != nil {
				a.callback()
				continue
			}
			select {
			case a.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes alarms due at or before target, reschedules tickers,
// and returns the alarms to fire in deadline order.
func (c *FakeClock) takeDue(target time.Time) []*alarm {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*alarm
	for _, a := range c.pending {
		switch {
		case !a.active:
		case a.deadline.After(target):
			remaining = append(remaining, a)
		default:
			due = append(due, a)
		}
	}
	slices.SortStableFunc(due, func(x, y *alarm) int {
		return x.deadline.Compare(y.deadline)
	})
	for _, a := range due {
		if a.period > 0 {
			a.deadline = a.deadline.Add(a.period)
			remaining = append(remaining, a)
		} else {
			a.active = false
		}
	}
	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n timers or tickers are pending.
// Tests call it before Advance to avoid racing a goroutine that has not
// registered its timer yet.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, a := range c.pending {
		if a.active {
			count++
		}
	}
	return count
}
