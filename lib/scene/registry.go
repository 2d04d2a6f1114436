// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"fmt"
	"sort"

	"github.com/bureau-foundation/stardust/lib/clock"
)

// Handler implements one aspect method. The returned value becomes the
// Response result; a returned error becomes a typed error Response
// (see wire.AsError). Handlers run on the dispatch goroutine inside a
// tick and must not block on I/O.
type Handler func(call *Call) (any, error)

// Method describes one remotely invokable method.
type Method struct {
	Handler Handler

	// Ownership marks methods that change ownership-sensitive state.
	// Only the node's owner or a delegate may call them.
	Ownership bool

	Description string
}

// Instance is per-node state an aspect keeps for each node it is
// attached to. The core never inspects it.
type Instance any

// Detacher is implemented by instances that release external state
// when their node is destroyed.
type Detacher interface {
	Detach(node *Node, env Env)
}

// ParentObserver is implemented by instances that care when the
// node's spatial parent changes or disappears.
type ParentObserver interface {
	ParentChanged(store *Store, node *Node, env Env)
}

// Table describes an aspect.
type Table struct {
	Name        string
	Description string
	Methods     map[string]Method

	// Events lists the event names the aspect emits as signals.
	Events []string

	// Requires names aspects that must be attached to a node before
	// this one.
	Requires []string

	// Implicit aspects are attached to every node at creation.
	Implicit bool

	// Internal aspects may only be attached to nodes owned by
	// wire.InternalClient.
	Internal bool

	// New builds the per-node instance. Nil means the aspect is
	// stateless.
	New func(node *Node) Instance

	// Tick, if set, runs once at the end of every engine tick.
	Tick func(store *Store, env Env, frame clock.Frame)
}

// Registry maps aspect names to tables. Build it at startup, call
// Freeze, and treat it as read-only from then on.
type Registry struct {
	tables map[string]*Table
	frozen bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds table. It fails after Freeze, on a duplicate name, on
// a method without a handler, or on a requirement that is not yet
// registered.
func (r *Registry) Register(table Table) error {
	if r.frozen {
		return fmt.Errorf("registering aspect %q: registry is frozen", table.Name)
	}
	if table.Name == "" {
		return fmt.Errorf("registering aspect: empty name")
	}
	if _, exists := r.tables[table.Name]; exists {
		return fmt.Errorf("registering aspect %q: already registered", table.Name)
	}
	for name, method := range table.Methods {
		if method.Handler == nil {
			return fmt.Errorf("registering aspect %q: method %q has no handler", table.Name, name)
		}
	}
	for _, required := range table.Requires {
		if _, ok := r.tables[required]; !ok {
			return fmt.Errorf("registering aspect %q: required aspect %q not registered", table.Name, required)
		}
	}
	registered := table
	r.tables[table.Name] = &registered
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen }

// Resolve looks up an aspect by name.
func (r *Registry) Resolve(name string) (*Table, bool) {
	table, ok := r.tables[name]
	return table, ok
}

// Names returns registered aspect names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) implicit() []*Table {
	var tables []*Table
	for _, name := range r.Names() {
		if table := r.tables[name]; table.Implicit {
			tables = append(tables, table)
		}
	}
	return tables
}

// Tables returns every table in name order.
func (r *Registry) Tables() []*Table {
	tables := make([]*Table, 0, len(r.tables))
	for _, name := range r.Names() {
		tables = append(tables, r.tables[name])
	}
	return tables
}
