// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"cmp"
	"slices"
	"time"

	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// pendingKey identifies a server-to-client call by the callee and the
// sequence number the server chose on the callee's connection.
type pendingKey struct {
	callee wire.ClientID
	seq    uint64
}

// pendingCall is the waiter for one server-to-client call: either a
// client's deferred Call (caller, callerSeq) or an internal reply.
type pendingCall struct {
	caller    wire.ClientID
	callerSeq uint64
	reply     scene.Reply
	deadline  time.Time
	method    string
}

// Forward implements scene.Env.
func (e *Engine) Forward(call *scene.Call, target wire.ClientID, node wire.NodeID, aspect, member string, args any) error {
	c, err := e.activeClient(target)
	if err != nil {
		return err
	}
	if call.Kind != wire.KindCall {
		message, err := wire.NewSignal(node, aspect, member, args)
		if err != nil {
			return wire.Errorf(wire.CodeInvalidArguments, "%v", err)
		}
		e.send(c, message)
		return nil
	}
	return e.request(c, node, aspect, member, args, &pendingCall{caller: call.Caller, callerSeq: call.Seq})
}

// Request implements scene.Env.
func (e *Engine) Request(target wire.ClientID, node wire.NodeID, aspect, member string, args any, reply scene.Reply) error {
	c, err := e.activeClient(target)
	if err != nil {
		return err
	}
	return e.request(c, node, aspect, member, args, &pendingCall{caller: wire.InternalClient, reply: reply})
}

func (e *Engine) activeClient(id wire.ClientID) (*client.Client, error) {
	c, ok := e.clients.Get(id)
	if !ok || c.State() != client.Active {
		return nil, wire.Errorf(wire.CodeClientDisconnected, "%s is not connected", id)
	}
	return c, nil
}

func (e *Engine) request(c *client.Client, node wire.NodeID, aspect, member string, args any, p *pendingCall) error {
	seq := c.NextSeq()
	message, err := wire.NewCall(seq, node, aspect, member, args)
	if err != nil {
		return wire.Errorf(wire.CodeInvalidArguments, "%v", err)
	}
	p.deadline = e.clock.Now().Add(e.config.CallTimeout)
	p.method = aspect + "." + member
	e.pending[pendingKey{callee: c.ID, seq: seq}] = p
	e.send(c, message)
	return nil
}

// resolve delivers a client's Response to whoever is waiting for it.
func (e *Engine) resolve(from wire.ClientID, message wire.Message) {
	key := pendingKey{callee: from, seq: message.Seq}
	p, ok := e.pending[key]
	if !ok {
		e.logger.Debug("response to unknown call", "client", from, "seq", message.Seq)
		return
	}
	delete(e.pending, key)

	if message.Error != nil {
		e.settle(p, nil, message.Error)
		return
	}
	e.settle(p, message.Result, nil)
}

// settle completes p. A nil *wire.Error must not reach the reply as a
// non-nil error interface, so err is passed as error only when set.
func (e *Engine) settle(p *pendingCall, result codec.RawMessage, failure *wire.Error) {
	if p.reply != nil {
		var err error
		if failure != nil {
			err = failure
		}
		e.runReply(p, result, err)
		return
	}
	if failure != nil {
		e.respond(p.caller, p.callerSeq, nil, failure)
		return
	}
	e.respond(p.caller, p.callerSeq, result, nil)
}

func (e *Engine) runReply(p *pendingCall, result codec.RawMessage, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("reply callback panicked", "method", p.method, "panic", recovered)
		}
	}()
	p.reply(result, err)
}

// abandon drops pending calls waiting on behalf of (caller, seq), used
// when a handler fails after forwarding.
func (e *Engine) abandon(caller wire.ClientID, seq uint64) {
	for key, p := range e.pending {
		if p.reply == nil && p.caller == caller && p.callerSeq == seq {
			delete(e.pending, key)
		}
	}
}

// dropPending settles every pending call involving a departed client.
// Calls it was due to answer fail with client_disconnected; calls made
// on its behalf are discarded since nobody is left to answer.
func (e *Engine) dropPending(gone wire.ClientID) {
	for _, key := range e.sortedPending() {
		p := e.pending[key]
		switch {
		case key.callee == gone:
			delete(e.pending, key)
			e.settle(p, nil, wire.Errorf(wire.CodeClientDisconnected, "%s disconnected before answering %s", gone, p.method))
		case p.reply == nil && p.caller == gone:
			delete(e.pending, key)
		}
	}
}

// expire fails pending calls whose deadline has passed.
func (e *Engine) expire(now time.Time) {
	for _, key := range e.sortedPending() {
		p := e.pending[key]
		if now.Before(p.deadline) {
			continue
		}
		delete(e.pending, key)
		e.logger.Info("pending call timed out", "callee", key.callee, "seq", key.seq, "method", p.method)
		e.settle(p, nil, wire.Errorf(wire.CodeTimeout, "%s did not answer %s within %s", key.callee, p.method, e.config.CallTimeout))
	}
}

func (e *Engine) sortedPending() []pendingKey {
	keys := make([]pendingKey, 0, len(e.pending))
	for key := range e.pending {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b pendingKey) int {
		if c := cmp.Compare(a.callee, b.callee); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return keys
}
