// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction and the frame
// ticker that paces the dispatch engine when no renderer drives it.
//
// Code that needs time holds a Clock: Real() in production, Fake() in
// tests. A FakeClock moves only when Advance is called, so watchdogs
// and pending-call timeouts can be tested without sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go watchdog(c)
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second)
package clock
