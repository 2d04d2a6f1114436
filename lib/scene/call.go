// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Call is the context a handler receives: who is calling, on which
// node, with which arguments, and access to the store and engine.
type Call struct {
	Caller wire.ClientID
	Node   *Node
	Aspect string
	Method string

	// Kind is wire.KindCall or wire.KindSignal. Signals get no
	// response; a handler's result is discarded.
	Kind wire.Kind

	// Seq is the caller's sequence number for a Call, zero for a
	// Signal.
	Seq uint64

	args     codec.RawMessage
	store    *Store
	env      Env
	deferred bool
}

// NewCall assembles a call context. The dispatch engine builds one per
// message; tests build them directly.
func NewCall(store *Store, env Env, caller wire.ClientID, node *Node, message wire.Message) *Call {
	return &Call{
		Caller: caller,
		Node:   node,
		Aspect: message.Aspect,
		Method: message.Member,
		Kind:   message.Kind,
		Seq:    message.Seq,
		args:   message.Args,
		store:  store,
		env:    env,
	}
}

// Store returns the node store.
func (c *Call) Store() *Store { return c.store }

// Env returns the dispatch engine.
func (c *Call) Env() Env { return c.env }

// Args returns the raw arguments.
func (c *Call) Args() codec.RawMessage { return c.args }

// Decode decodes the arguments into v. Missing or mismatched arguments
// yield a CodeInvalidArguments error suitable for returning directly.
func (c *Call) Decode(v any) error {
	if len(c.args) == 0 {
		return wire.Errorf(wire.CodeInvalidArguments, "%s.%s: missing arguments", c.Aspect, c.Method)
	}
	if err := wire.Unmarshal(c.args, v); err != nil {
		return wire.Errorf(wire.CodeInvalidArguments, "%s.%s: %v", c.Aspect, c.Method, err)
	}
	return nil
}

// DecodeOptional is Decode for methods whose arguments may be omitted.
func (c *Call) DecodeOptional(v any) error {
	if len(c.args) == 0 {
		return nil
	}
	return c.Decode(v)
}

// Instance returns this aspect's per-node state.
func (c *Call) Instance() Instance {
	instance, _ := c.Node.Instance(c.Aspect)
	return instance
}

// CreateNode creates a node owned by the caller. Clients can only ever
// create nodes they own.
func (c *Call) CreateNode(parent wire.NodeID, aspects []string) (*Node, error) {
	return c.store.Create(c.Caller, parent, aspects)
}

// Emit sends an event from this call's aspect on this call's node.
func (c *Call) Emit(event string, payload any) {
	c.env.Emit(c.Node, c.Aspect, event, payload)
}

// Forward passes the call on to target and defers the response until
// target answers.
func (c *Call) Forward(target wire.ClientID, node wire.NodeID, aspect, member string, args any) error {
	if err := c.env.Forward(c, target, node, aspect, member, args); err != nil {
		return err
	}
	if c.Kind == wire.KindCall {
		c.deferred = true
	}
	return nil
}

// Deferred reports whether the response will be produced later by a
// forwarded call.
func (c *Call) Deferred() bool { return c.deferred }
