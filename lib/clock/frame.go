// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Frame describes one tick of the external frame clock.
type Frame struct {
	// Number counts frames from 1.
	Number uint64

	// Time is when the frame started.
	Time time.Time

	// Delta is the time since the previous frame, zero for the first.
	Delta time.Duration
}

// FrameTicker turns a Clock ticker into a stream of Frames. It stands
// in for a renderer's frame callback when the server runs headless.
//
// Like Ticker, C has capacity 1: a consumer that falls behind skips
// frames rather than queueing them.
type FrameTicker struct {
	C <-chan Frame

	ticker *Ticker
	done   chan struct{}
	once   sync.Once
}

// NewFrameTicker emits a Frame every interval. Panics if interval <= 0.
func NewFrameTicker(c Clock, interval time.Duration) *FrameTicker {
	frames := make(chan Frame, 1)
	ft := &FrameTicker{
		C:      frames,
		ticker: c.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go ft.run(frames)
	return ft
}

// IntervalForRate converts a frames-per-second rate into a ticker
// interval. Non-positive rates yield zero.
func IntervalForRate(rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rate)
}

func (ft *FrameTicker) run(frames chan<- Frame) {
	var number uint64
	var last time.Time
	for {
		select {
		case <-ft.done:
			return
		case now := <-ft.ticker.C:
			number++
			frame := Frame{Number: number, Time: now}
			if !last.IsZero() {
				frame.Delta = now.Sub(last)
			}
			last = now
			select {
			case frames <- frame:
			default:
			}
		}
	}
}

// Stop halts frame delivery. It is safe to call more than once.
func (ft *FrameTicker) Stop() {
	ft.once.Do(func() {
		ft.ticker.Stop()
		close(ft.done)
	})
}
