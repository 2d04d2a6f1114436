// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/stardust/lib/wire"
)

// Store is the node arena.
type Store struct {
	registry *Registry
	env      Env
	nodes    map[wire.NodeID]*Node
	lastID   wire.NodeID
}

// NewStore returns an empty store resolving aspects through registry.
// env receives detach and reparent notifications; it may be nil in
// tests that do not need them.
func NewStore(registry *Registry, env Env) *Store {
	return &Store{
		registry: registry,
		env:      env,
		nodes:    make(map[wire.NodeID]*Node),
	}
}

// Registry returns the store's aspect registry.
func (s *Store) Registry() *Registry { return s.registry }

// Bootstrap creates the reserved interface node, owned by the internal
// client and not destroyable, carrying the given aspects.
func (s *Store) Bootstrap(aspects ...string) (*Node, error) {
	if _, exists := s.nodes[wire.InterfaceNode]; exists {
		return nil, wire.Errorf(wire.CodeAspectError, "interface node already exists")
	}
	node := &Node{ID: wire.InterfaceNode, Owner: wire.InternalClient, Enabled: true}
	if err := s.attachAll(node, aspects, false); err != nil {
		return nil, err
	}
	s.nodes[node.ID] = node
	s.construct(node, 0)
	return node, nil
}

// Create allocates a node owned by owner. parent is the initial
// spatial parent (zero for none) and must exist. Implicit aspects are
// attached first, then aspects in order.
func (s *Store) Create(owner wire.ClientID, parent wire.NodeID, aspects []string) (*Node, error) {
	if parent != 0 {
		if _, ok := s.nodes[parent]; !ok {
			return nil, wire.Errorf(wire.CodeUnknownNode, "parent %s", parent)
		}
	}
	node := &Node{Owner: owner, Enabled: true, Destroyable: true, parent: parent}
	if err := s.attachAll(node, aspects, true); err != nil {
		return nil, err
	}
	s.lastID++
	node.ID = s.lastID
	s.nodes[node.ID] = node
	s.construct(node, 0)
	return node, nil
}

// attachAll validates and records the aspect list without building
// instances; construct runs after the node has its ID.
func (s *Store) attachAll(node *Node, names []string, implicit bool) error {
	if implicit {
		for _, table := range s.registry.implicit() {
			node.aspects = append(node.aspects, attachment{table: table})
		}
	}
	for _, name := range names {
		if node.Has(name) {
			if implicit && s.isImplicit(name) {
				continue
			}
			return wire.Errorf(wire.CodeInvalidArguments, "aspect %q listed twice", name)
		}
		table, err := s.resolveAttachable(node, name)
		if err != nil {
			return err
		}
		node.aspects = append(node.aspects, attachment{table: table})
	}
	return nil
}

func (s *Store) isImplicit(name string) bool {
	table, ok := s.registry.Resolve(name)
	return ok && table.Implicit
}

func (s *Store) resolveAttachable(node *Node, name string) (*Table, error) {
	table, ok := s.registry.Resolve(name)
	if !ok {
		return nil, wire.Errorf(wire.CodeMethodNotSupported, "aspect %q is not registered", name)
	}
	if table.Internal && node.Owner != wire.InternalClient {
		return nil, wire.Errorf(wire.CodePermissionDenied, "aspect %q is reserved for server-owned nodes", name)
	}
	for _, required := range table.Requires {
		if !node.Has(required) {
			return nil, wire.Errorf(wire.CodeInvalidArguments, "aspect %q requires %q", name, required)
		}
	}
	return table, nil
}

// construct builds instances for attachments from index start on.
func (s *Store) construct(node *Node, start int) {
	for i := start; i < len(node.aspects); i++ {
		if constructor := node.aspects[i].table.New; constructor != nil && node.aspects[i].instance == nil {
			node.aspects[i].instance = constructor(node)
		}
	}
}

// Attach adds an aspect to a live node.
func (s *Store) Attach(id wire.NodeID, aspect string) error {
	node, ok := s.nodes[id]
	if !ok {
		return wire.Errorf(wire.CodeUnknownNode, "%s", id)
	}
	if node.Has(aspect) {
		return wire.Errorf(wire.CodeInvalidArguments, "aspect %q already attached to %s", aspect, id)
	}
	table, err := s.resolveAttachable(node, aspect)
	if err != nil {
		return err
	}
	node.aspects = append(node.aspects, attachment{table: table})
	s.construct(node, len(node.aspects)-1)
	return nil
}

// Get returns a live node.
func (s *Store) Get(id wire.NodeID) (*Node, bool) {
	node, ok := s.nodes[id]
	return node, ok
}

// Len returns the number of live nodes, including the interface node.
func (s *Store) Len() int { return len(s.nodes) }

// Parent resolves a node's spatial parent. It reports false when the
// node has no parent or its parent no longer exists.
func (s *Store) Parent(id wire.NodeID) (*Node, bool) {
	node, ok := s.nodes[id]
	if !ok || node.parent == 0 {
		return nil, false
	}
	parent, ok := s.nodes[node.parent]
	return parent, ok
}

// ChildrenOf returns the live nodes whose parent reference names id,
// in ascending ID order.
func (s *Store) ChildrenOf(id wire.NodeID) []wire.NodeID {
	var children []wire.NodeID
	for childID, node := range s.nodes {
		if node.parent == id && id != 0 {
			children = append(children, childID)
		}
	}
	slices.Sort(children)
	return children
}

// IsAncestor reports whether ancestor appears on id's resolved parent
// chain.
func (s *Store) IsAncestor(ancestor, id wire.NodeID) bool {
	seen := make(map[wire.NodeID]struct{})
	for current := id; ; {
		parent, ok := s.Parent(current)
		if !ok {
			return false
		}
		if parent.ID == ancestor {
			return true
		}
		if _, looped := seen[parent.ID]; looped {
			return false
		}
		seen[parent.ID] = struct{}{}
		current = parent.ID
	}
}

// SetParent changes a node's spatial parent. Zero clears it. Parenting
// a node to itself or to one of its descendants is rejected.
func (s *Store) SetParent(id, parent wire.NodeID) error {
	node, ok := s.nodes[id]
	if !ok {
		return wire.Errorf(wire.CodeUnknownNode, "%s", id)
	}
	if parent != 0 {
		if _, ok := s.nodes[parent]; !ok {
			return wire.Errorf(wire.CodeUnknownNode, "parent %s", parent)
		}
		if parent == id || s.IsAncestor(id, parent) {
			return wire.Errorf(wire.CodeAspectError, "parenting %s to %s would create a loop", id, parent)
		}
	}
	node.parent = parent
	s.notifyParentChanged(node)
	return nil
}

// Destroy removes a node and detaches its aspects in reverse order.
// Children keep their parent reference, which now dangles and resolves
// to no parent. The interface node cannot be destroyed.
func (s *Store) Destroy(id wire.NodeID) (*Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, wire.Errorf(wire.CodeUnknownNode, "%s", id)
	}
	if id == wire.InterfaceNode {
		return nil, wire.Errorf(wire.CodePermissionDenied, "the interface node cannot be destroyed")
	}
	children := s.ChildrenOf(id)
	s.remove(node)
	for _, childID := range children {
		s.notifyParentChanged(s.nodes[childID])
	}
	return node, nil
}

func (s *Store) remove(node *Node) {
	delete(s.nodes, node.ID)
	for i := len(node.aspects) - 1; i >= 0; i-- {
		if detacher, ok := node.aspects[i].instance.(Detacher); ok && s.env != nil {
			detacher.Detach(node, s.env)
		}
	}
	node.delegates = nil
	node.subscribers = nil
}

// OwnedBy returns the IDs of client's nodes in ascending order.
func (s *Store) OwnedBy(client wire.ClientID) []wire.NodeID {
	var owned []wire.NodeID
	for id, node := range s.nodes {
		if node.Owner == client {
			owned = append(owned, id)
		}
	}
	slices.Sort(owned)
	return owned
}

// DestroyOwnedBy tears down every node client owns, newest first, and
// clears the parent reference of each surviving node that pointed at
// one of them. It also drops client's delegations and subscriptions on
// nodes it did not own. Returns the destroyed IDs in ascending order.
func (s *Store) DestroyOwnedBy(client wire.ClientID) []wire.NodeID {
	owned := s.OwnedBy(client)
	destroyed := make(map[wire.NodeID]struct{}, len(owned))
	for i := len(owned) - 1; i >= 0; i-- {
		node := s.nodes[owned[i]]
		s.remove(node)
		destroyed[node.ID] = struct{}{}
	}

	var orphaned []*Node
	for _, node := range s.nodes {
		node.forget(client)
		if _, lost := destroyed[node.parent]; lost && node.parent != 0 {
			node.parent = 0
			orphaned = append(orphaned, node)
		}
	}
	slices.SortFunc(orphaned, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
	for _, node := range orphaned {
		s.notifyParentChanged(node)
	}
	return owned
}

// Transfer makes client the owner of a node. Its delegation, if any,
// is dropped; the previous owner keeps no access.
func (s *Store) Transfer(id wire.NodeID, client wire.ClientID) error {
	node, ok := s.nodes[id]
	if !ok {
		return wire.Errorf(wire.CodeUnknownNode, "%s", id)
	}
	if id == wire.InterfaceNode {
		return wire.Errorf(wire.CodePermissionDenied, "the interface node cannot be transferred")
	}
	delete(node.delegates, client)
	node.Owner = client
	return nil
}

// Walk calls fn for every node in ascending ID order. fn must not
// create or destroy nodes.
func (s *Store) Walk(fn func(node *Node) bool) {
	ids := make([]wire.NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !fn(s.nodes[id]) {
			return
		}
	}
}

func (s *Store) notifyParentChanged(node *Node) {
	if node == nil || s.env == nil {
		return
	}
	for _, a := range node.aspects {
		if observer, ok := a.instance.(ParentObserver); ok {
			observer.ParentChanged(s, node, s.env)
		}
	}
}
