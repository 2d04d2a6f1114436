// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// RelayArgs are the arguments of relay.call. The owner receives a Call
// (or, for a Signal, a Signal) on the node's relay aspect named Member
// with Args.
type RelayArgs struct {
	Member string           `cbor:"member"`
	Args   codec.RawMessage `cbor:"args,omitempty"`
}

func (b *Builtins) relayTable() scene.Table {
	return scene.Table{
		Name:        Relay,
		Description: "Methods answered by the node's owning client.",
		Methods: map[string]scene.Method{
			"call": {
				Handler:     relayCall,
				Description: "Forward member(args) to the owner and return its answer.",
			},
		},
	}
}

func relayCall(call *scene.Call) (any, error) {
	var args RelayArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if args.Member == "" {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "relay member is empty")
	}
	if call.Node.Owner == wire.InternalClient {
		return nil, wire.Errorf(wire.CodeAspectError, "%s is owned by the server", call.Node.ID)
	}
	return nil, call.Forward(call.Node.Owner, call.Node.ID, Relay, args.Member, args.Args)
}
