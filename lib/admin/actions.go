// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/dispatch"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/session"
	"github.com/bureau-foundation/stardust/lib/version"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Status is the result of the status action.
type Status struct {
	Version  string        `cbor:"version"`
	Protocol uint32        `cbor:"protocol"`
	Instance string        `cbor:"instance,omitempty"`
	Uptime   time.Duration `cbor:"uptime"`
	Frame    uint64        `cbor:"frame"`
	Clients  int           `cbor:"clients"`
	Nodes    int           `cbor:"nodes"`
	Pending  int           `cbor:"pending"`
}

// NodeSummary is one entry of the nodes action.
type NodeSummary struct {
	ID      wire.NodeID   `cbor:"id"`
	Owner   wire.ClientID `cbor:"owner"`
	Parent  wire.NodeID   `cbor:"parent,omitempty"`
	Enabled bool          `cbor:"enabled"`
	Aspects []string      `cbor:"aspects"`
}

// TreeNode is one node of the tree action. Nodes whose parent is
// missing are roots.
type TreeNode struct {
	NodeSummary
	Children []TreeNode `cbor:"children,omitempty"`
}

// SaveResult is the result of save-session.
type SaveResult struct {
	Session string `cbor:"session"`
	Clients int    `cbor:"clients"`
}

// Deps are what the admin actions operate on.
type Deps struct {
	Engine  *dispatch.Engine
	Clients *client.Registry
	Clock   clock.Clock

	// Sessions enables save-session when set.
	Sessions *session.Store

	// SaveTimeout bounds how long save-session waits for clients.
	// Zero means five seconds.
	SaveTimeout time.Duration

	// Instance is reported by status.
	Instance string
}

// Register installs the admin actions on server.
func Register(server *SocketServer, deps Deps, logger *slog.Logger) {
	if deps.SaveTimeout <= 0 {
		deps.SaveTimeout = 5 * time.Second
	}
	a := &actions{deps: deps, logger: logger, started: deps.Clock.Now()}
	server.Handle("status", a.status)
	server.Handle("clients", a.clients)
	server.Handle("nodes", a.nodes)
	server.Handle("tree", a.tree)
	server.Handle("disconnect", a.disconnect)
	server.Handle("save-session", a.saveSession)
}

type actions struct {
	deps    Deps
	logger  *slog.Logger
	started time.Time
}

func (a *actions) status(ctx context.Context, _ []byte) (any, error) {
	var status Status
	err := a.deps.Engine.Do(ctx, func(view dispatch.View) {
		status = Status{
			Version:  version.Info(),
			Protocol: version.Protocol,
			Instance: a.deps.Instance,
			Uptime:   a.deps.Clock.Now().Sub(a.started),
			Frame:    view.Frame.Number,
			Clients:  a.deps.Clients.Len(),
			Nodes:    view.Store.Len(),
			Pending:  view.Pending,
		}
	})
	return status, err
}

func (a *actions) clients(context.Context, []byte) (any, error) {
	all := a.deps.Clients.All()
	snapshots := make([]client.Snapshot, len(all))
	for i, c := range all {
		snapshots[i] = c.Snapshot()
	}
	return snapshots, nil
}

func summarize(node *scene.Node) NodeSummary {
	return NodeSummary{
		ID:      node.ID,
		Owner:   node.Owner,
		Parent:  node.RawParent(),
		Enabled: node.Enabled,
		Aspects: node.Aspects(),
	}
}

func (a *actions) nodes(ctx context.Context, _ []byte) (any, error) {
	var summaries []NodeSummary
	err := a.deps.Engine.Do(ctx, func(view dispatch.View) {
		view.Store.Walk(func(node *scene.Node) bool {
			summaries = append(summaries, summarize(node))
			return true
		})
	})
	return summaries, err
}

func (a *actions) tree(ctx context.Context, _ []byte) (any, error) {
	var roots []TreeNode
	err := a.deps.Engine.Do(ctx, func(view dispatch.View) {
		var build func(node *scene.Node) TreeNode
		build = func(node *scene.Node) TreeNode {
			entry := TreeNode{NodeSummary: summarize(node)}
			for _, id := range view.Store.ChildrenOf(node.ID) {
				if child, ok := view.Store.Get(id); ok {
					entry.Children = append(entry.Children, build(child))
				}
			}
			return entry
		}
		view.Store.Walk(func(node *scene.Node) bool {
			if _, hasParent := view.Store.Parent(node.ID); !hasParent {
				roots = append(roots, build(node))
			}
			return true
		})
	})
	return roots, err
}

func (a *actions) disconnect(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Client wire.ClientID `cbor:"client"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Client == wire.InternalClient {
		return nil, errors.New("missing required field: client")
	}
	if !a.deps.Clients.Disconnect(request.Client, client.ErrKicked) {
		return nil, fmt.Errorf("%s is not connected", request.Client)
	}
	a.logger.Info("client kicked", "client", request.Client)
	return nil, nil
}

func (a *actions) saveSession(ctx context.Context, _ []byte) (any, error) {
	if a.deps.Sessions == nil {
		return nil, errors.New("session saving is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, a.deps.SaveTimeout)
	defer cancel()
	states, err := session.Collect(ctx, a.deps.Engine, a.deps.Clients, a.logger)
	if err != nil {
		return nil, err
	}
	id, err := a.deps.Sessions.Save(states)
	if err != nil {
		return nil, err
	}
	return SaveResult{Session: id, Clients: len(states)}, nil
}
