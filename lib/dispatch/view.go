// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/scene"
)

// View is the engine state visible to a function run with Do. It is
// only valid for the duration of that function.
type View struct {
	Store   *scene.Store
	Env     scene.Env
	Frame   clock.Frame
	Pending int
}

// States of a function handed to Do.
const (
	doPending int32 = iota
	doRunning
	doAbandoned
)

// Do runs fn on the dispatch goroutine during the next tick and waits
// for it to finish. If ctx ends first and fn has not started, fn is
// dropped and Do returns ctx's error. Once fn has started Do waits for
// it, so fn never runs after Do returns.
func (e *Engine) Do(ctx context.Context, fn func(view View)) error {
	var state atomic.Int32
	done := make(chan struct{})
	err := e.Post(func(store *scene.Store, env scene.Env) {
		if !state.CompareAndSwap(doPending, doRunning) {
			return
		}
		defer close(done)
		fn(View{Store: store, Env: env, Frame: e.frame, Pending: len(e.pending)})
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(doPending, doAbandoned) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}
