// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by TryPush when the queue is at its
	// bound.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueClosed is returned by pushes after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// Queue is a bounded, thread-safe FIFO between one producer side and
// one consumer side. It never grows past its limit: producers either
// fail fast (TryPush) or wait for the consumer (Push).
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	limit  int
	closed bool

	// ready holds a token while items are queued; space holds one
	// after a Drain frees room. Both have capacity 1 so signalling
	// never blocks.
	ready chan struct{}
	space chan struct{}
}

// NewQueue returns a queue holding at most limit items. Panics if
// limit < 1.
func NewQueue[T any](limit int) *Queue[T] {
	if limit < 1 {
		panic("client: queue limit must be positive")
	}
	return &Queue[T]{
		limit: limit,
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

// TryPush appends v, or fails with ErrQueueFull or ErrQueueClosed.
func (q *Queue[T]) TryPush(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, v)
	signal(q.ready)
	return nil
}

// Push appends v, waiting for room until ctx is done or the queue is
// closed.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	for {
		err := q.TryPush(v)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		select {
		case <-q.space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain removes and returns everything queued, in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	if len(items) > 0 {
		signal(q.space)
	}
	select {
	case <-q.ready:
	default:
	}
	return items
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Limit returns the queue bound.
func (q *Queue[T]) Limit() int { return q.limit }

// Ready is signalled when items become available. A receive does not
// guarantee items remain; always Drain and check.
func (q *Queue[T]) Ready() <-chan struct{} { return q.ready }

// Close rejects further pushes and wakes blocked producers. Items
// already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	signal(q.space)
	signal(q.ready)
}

func signal(channel chan struct{}) {
	select {
	case channel <- struct{}{}:
	default:
	}
}
