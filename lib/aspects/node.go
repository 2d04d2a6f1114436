// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// EventDestroyed is emitted by the node aspect to a node's recipients
// as it is destroyed, whatever the cause.
const EventDestroyed = "destroyed"

// Export modes.
const (
	// ExportDelegate grants the importer ownership-level access while
	// the exporter stays owner.
	ExportDelegate = "delegate"

	// ExportTransfer makes the importer the owner.
	ExportTransfer = "transfer"
)

// NodeInfo is the result of node.describe.
type NodeInfo struct {
	ID        wire.NodeRef    `cbor:"id"`
	Owner     wire.ClientID   `cbor:"owner"`
	Parent    *wire.NodeRef   `cbor:"parent,omitempty"`
	Enabled   bool            `cbor:"enabled"`
	Aspects   []string        `cbor:"aspects"`
	Children  []wire.NodeRef  `cbor:"children,omitempty"`
	Delegates []wire.ClientID `cbor:"delegates,omitempty"`
}

// export is an outstanding export token. Tokens are single use.
type export struct {
	node wire.NodeID
	mode string
}

// maxExportsPerNode bounds the unredeemed tokens one node may have.
const maxExportsPerNode = 16

type nodeInstance struct {
	builtins *Builtins
}

// Detach revokes the node's export tokens and tells its recipients it
// is gone.
func (n nodeInstance) Detach(node *scene.Node, env scene.Env) {
	n.builtins.revokeExports(node.ID)
	env.Emit(node, Node, EventDestroyed, nil)
}

func (b *Builtins) revokeExports(id wire.NodeID) {
	for token := range b.nodeExports[id] {
		delete(b.exports, token)
	}
	delete(b.nodeExports, id)
}

// takeExport redeems token.
func (b *Builtins) takeExport(token string) (export, bool) {
	exported, ok := b.exports[token]
	if !ok {
		return export{}, false
	}
	delete(b.exports, token)
	if tokens := b.nodeExports[exported.node]; tokens != nil {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(b.nodeExports, exported.node)
		}
	}
	return exported, true
}

func (b *Builtins) nodeTable() scene.Table {
	return scene.Table{
		Name:        Node,
		Description: "Lifecycle and sharing, attached to every node.",
		Implicit:    true,
		Events:      []string{EventDestroyed},
		New:         func(*scene.Node) scene.Instance { return nodeInstance{builtins: b} },
		Methods: map[string]scene.Method{
			"destroy": {
				Handler:     destroyNode,
				Ownership:   true,
				Description: "Destroy the node. Spatial children keep a parent reference that resolves to none.",
			},
			"set_enabled": {
				Handler:     b.setEnabled,
				Ownership:   true,
				Description: "Show or hide the node.",
			},
			"attach": {
				Handler:     attachAspect,
				Ownership:   true,
				Description: "Attach another aspect.",
			},
			"subscribe": {
				Handler:     subscribeNode,
				Description: "Receive this node's events.",
			},
			"unsubscribe": {
				Handler:     unsubscribeNode,
				Description: "Stop receiving this node's events.",
			},
			"describe": {
				Handler:     describeNode,
				Description: "Report owner, parent, aspects and children.",
			},
			"export": {
				Handler:     b.exportNode,
				Ownership:   true,
				Description: "Mint a single-use token another client can import.",
			},
		},
	}
}

func destroyNode(call *scene.Call) (any, error) {
	if !call.Node.Destroyable {
		return nil, wire.Errorf(wire.CodePermissionDenied, "%s cannot be destroyed", call.Node.ID)
	}
	_, err := call.Store().Destroy(call.Node.ID)
	return nil, err
}

func (b *Builtins) setEnabled(call *scene.Call) (any, error) {
	var args struct {
		Enabled bool `cbor:"enabled"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	call.Node.Enabled = args.Enabled
	if call.Node.Handle != nil {
		b.renderer.SetEnabled(call.Node.Handle, args.Enabled)
	}
	return nil, nil
}

func attachAspect(call *scene.Call) (any, error) {
	var args struct {
		Aspect string `cbor:"aspect"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if err := call.Store().Attach(call.Node.ID, args.Aspect); err != nil {
		return nil, err
	}
	if state, ok := spatialOf(call.Node); ok && args.Aspect == Spatial {
		state.push(call.Store(), call.Node)
	}
	return nil, nil
}

func subscribeNode(call *scene.Call) (any, error) {
	call.Node.Subscribe(call.Caller)
	return nil, nil
}

func unsubscribeNode(call *scene.Call) (any, error) {
	call.Node.Unsubscribe(call.Caller)
	return nil, nil
}

func describeNode(call *scene.Call) (any, error) {
	return Describe(call.Store(), call.Node), nil
}

// Describe reports a node's place in the scene.
func Describe(store *scene.Store, node *scene.Node) NodeInfo {
	info := NodeInfo{
		ID:        wire.Ref(node.ID),
		Owner:     node.Owner,
		Enabled:   node.Enabled,
		Aspects:   node.Aspects(),
		Children:  refs(store.ChildrenOf(node.ID)),
		Delegates: node.Delegates(),
	}
	if parent, ok := store.Parent(node.ID); ok {
		ref := wire.Ref(parent.ID)
		info.Parent = &ref
	}
	return info
}

func (b *Builtins) exportNode(call *scene.Call) (any, error) {
	var args struct {
		Mode string `cbor:"mode"`
	}
	if err := call.DecodeOptional(&args); err != nil {
		return nil, err
	}
	switch args.Mode {
	case "":
		args.Mode = ExportDelegate
	case ExportDelegate, ExportTransfer:
	default:
		return nil, wire.Errorf(wire.CodeInvalidArguments, "export mode %q (want %s or %s)", args.Mode, ExportDelegate, ExportTransfer)
	}
	id := call.Node.ID
	if len(b.nodeExports[id]) >= maxExportsPerNode {
		return nil, wire.Errorf(wire.CodeAspectError, "%s already has %d unredeemed export tokens", id, maxExportsPerNode)
	}
	token := ulid.Make().String()
	b.exports[token] = export{node: id, mode: args.Mode}
	if b.nodeExports[id] == nil {
		b.nodeExports[id] = make(map[string]struct{})
	}
	b.nodeExports[id][token] = struct{}{}
	return token, nil
}

func (b *Builtins) importNode(call *scene.Call) (any, error) {
	var args tokenArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	exported, ok := b.takeExport(args.Token)
	if !ok {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "unknown export token %q", args.Token)
	}

	node, ok := call.Store().Get(exported.node)
	if !ok {
		return nil, wire.Errorf(wire.CodeUnknownNode, "exported %s no longer exists", exported.node)
	}
	switch exported.mode {
	case ExportTransfer:
		if err := call.Store().Transfer(node.ID, call.Caller); err != nil {
			return nil, err
		}
		// Tokens the previous owner handed out die with its ownership.
		b.revokeExports(node.ID)
	default:
		node.Delegate(call.Caller)
	}
	return wire.Ref(node.ID), nil
}
