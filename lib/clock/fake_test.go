// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	_ Clock = (*FakeClock)(nil)
	_ Clock = Real()
)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	clock.Advance(5 * time.Second)
	if got, want := clock.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}

	if ready := clock.After(0); len(ready) != 1 {
		t.Error("After(0) not immediately ready")
	}
}

func TestFakeClockAfterFuncStopAndReset(t *testing.T) {
	clock := Fake(epoch)
	var calls atomic.Int32
	timer := clock.AfterFunc(time.Second, func() { calls.Add(1) })

	if !timer.Stop() {
		t.Error("Stop on pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
	clock.Advance(2 * time.Second)
	if calls.Load() != 0 {
		t.Fatal("stopped timer fired")
	}

	if timer.Reset(time.Second) {
		t.Error("Reset of stopped timer reported active")
	}
	clock.Advance(time.Second)
	if calls.Load() != 1 {
		t.Fatalf("calls = %d after reset, want 1", calls.Load())
	}
	clock.Advance(time.Hour)
	if calls.Load() != 1 {
		t.Errorf("one-shot timer fired %d times", calls.Load())
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []int
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	clock.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeClockTickerDropsWhenFull(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	clock.Advance(5 * time.Second)
	if got := len(ticker.C); got != 1 {
		t.Fatalf("buffered ticks = %d, want 1", got)
	}
	<-ticker.C

	ticker.Stop()
	clock.Advance(5 * time.Second)
	if len(ticker.C) != 0 {
		t.Error("stopped ticker delivered a tick")
	}
	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after Stop, want 0", clock.PendingCount())
	}
}

func TestFakeClockTickerPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	fired := make(chan struct{})
	go func() {
		<-clock.After(time.Minute)
		close(fired)
	}()

	clock.WaitForTimers(1)
	clock.Advance(time.Minute)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not observe Advance")
	}
}
