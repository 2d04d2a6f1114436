// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"slices"

	"github.com/bureau-foundation/stardust/lib/wire"
)

// Node is an addressable scene object.
type Node struct {
	ID    wire.NodeID
	Owner wire.ClientID

	// Enabled nodes are visible to the renderer and receive input.
	Enabled bool

	// Destroyable is false for nodes clients must not remove, such as
	// the interface node.
	Destroyable bool

	// Handle is the renderer's transform handle, set by aspects that
	// create one. The core never interprets it.
	Handle any

	parent      wire.NodeID
	aspects     []attachment
	delegates   map[wire.ClientID]struct{}
	subscribers map[wire.ClientID]struct{}
}

type attachment struct {
	table    *Table
	instance Instance
}

// RawParent returns the stored parent ID without resolving it. Zero
// means no parent was set. A non-zero value may name a destroyed node;
// use Store.Parent for traversal.
func (n *Node) RawParent() wire.NodeID { return n.parent }

// Aspects returns attached aspect names in attachment order.
func (n *Node) Aspects() []string {
	names := make([]string, len(n.aspects))
	for i, a := range n.aspects {
		names[i] = a.table.Name
	}
	return names
}

// Has reports whether the named aspect is attached.
func (n *Node) Has(aspect string) bool {
	_, ok := n.attachment(aspect)
	return ok
}

// Instance returns the named aspect's per-node state.
func (n *Node) Instance(aspect string) (Instance, bool) {
	a, ok := n.attachment(aspect)
	if !ok {
		return nil, false
	}
	return a.instance, true
}

func (n *Node) attachment(aspect string) (attachment, bool) {
	for _, a := range n.aspects {
		if a.table.Name == aspect {
			return a, true
		}
	}
	return attachment{}, false
}

// Permits reports whether client may call ownership-sensitive methods
// on n.
func (n *Node) Permits(client wire.ClientID) bool {
	if client == n.Owner {
		return true
	}
	_, delegated := n.delegates[client]
	return delegated
}

// Delegate grants client ownership-level access without changing the
// owner.
func (n *Node) Delegate(client wire.ClientID) {
	if client == n.Owner {
		return
	}
	if n.delegates == nil {
		n.delegates = make(map[wire.ClientID]struct{})
	}
	n.delegates[client] = struct{}{}
}

// Delegates returns delegated clients in ascending order.
func (n *Node) Delegates() []wire.ClientID { return sortedClients(n.delegates) }

// Subscribe adds client to the node's event recipients.
func (n *Node) Subscribe(client wire.ClientID) {
	if n.subscribers == nil {
		n.subscribers = make(map[wire.ClientID]struct{})
	}
	n.subscribers[client] = struct{}{}
}

// Unsubscribe removes client from the node's event recipients.
func (n *Node) Unsubscribe(client wire.ClientID) {
	delete(n.subscribers, client)
}

// Recipients returns the clients that receive n's events: the owner
// (unless it is the internal client) followed by subscribers, each
// once, in ascending order.
func (n *Node) Recipients() []wire.ClientID {
	recipients := sortedClients(n.subscribers)
	if n.Owner != wire.InternalClient && !slices.Contains(recipients, n.Owner) {
		recipients = append(recipients, n.Owner)
		slices.Sort(recipients)
	}
	return recipients
}

// forget drops every grant and subscription held by client.
func (n *Node) forget(client wire.ClientID) {
	delete(n.delegates, client)
	delete(n.subscribers, client)
}

func sortedClients(set map[wire.ClientID]struct{}) []wire.ClientID {
	clients := make([]wire.ClientID, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	slices.Sort(clients)
	return clients
}
