// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func receiveFrame(t *testing.T, ticker *FrameTicker) Frame {
	t.Helper()
	select {
	case frame := <-ticker.C:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestFrameTickerNumbersAndDeltas(t *testing.T) {
	clock := Fake(epoch)
	ticker := NewFrameTicker(clock, 10*time.Millisecond)
	defer ticker.Stop()

	clock.WaitForTimers(1)
	clock.Advance(10 * time.Millisecond)
	first := receiveFrame(t, ticker)
	if first.Number != 1 || first.Delta != 0 {
		t.Errorf("first frame = %+v, want number 1 with zero delta", first)
	}

	clock.Advance(10 * time.Millisecond)
	second := receiveFrame(t, ticker)
	if second.Number != 2 {
		t.Errorf("second frame number = %d, want 2", second.Number)
	}
	if second.Delta != 10*time.Millisecond {
		t.Errorf("second frame delta = %v, want 10ms", second.Delta)
	}
}

func TestFrameTickerStopIsIdempotent(t *testing.T) {
	ticker := NewFrameTicker(Fake(epoch), time.Second)
	ticker.Stop()
	ticker.Stop()
}

func TestIntervalForRate(t *testing.T) {
	if got := IntervalForRate(50); got != 20*time.Millisecond {
		t.Errorf("IntervalForRate(50) = %v, want 20ms", got)
	}
	if got := IntervalForRate(0); got != 0 {
		t.Errorf("IntervalForRate(0) = %v, want 0", got)
	}
}
