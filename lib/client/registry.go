// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Limits bounds per-client resources.
type Limits struct {
	// InboundQueue and OutboundQueue are queue capacities in
	// messages.
	InboundQueue  int
	OutboundQueue int

	// InboundStall disconnects a client whose reader has been blocked
	// on a full inbound queue this long. Zero disables the watchdog.
	InboundStall time.Duration
}

// DefaultLimits are used for zero-valued fields.
var DefaultLimits = Limits{
	InboundQueue:  1024,
	OutboundQueue: 4096,
	InboundStall:  5 * time.Second,
}

// Registry tracks connected clients. Connection goroutines call
// Register, Handshake, EnqueueInbound and Disconnect; the dispatch
// engine reads Active, sends through Send, and collects teardowns with
// TakeClosing. All methods are safe for concurrent use.
type Registry struct {
	limits Limits
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	clients map[wire.ClientID]*Client
	lastID  wire.ClientID
	closing []*Client
}

// NewRegistry returns an empty registry.
func NewRegistry(limits Limits, clk clock.Clock, logger *slog.Logger) *Registry {
	if limits.InboundQueue <= 0 {
		limits.InboundQueue = DefaultLimits.InboundQueue
	}
	if limits.OutboundQueue <= 0 {
		limits.OutboundQueue = DefaultLimits.OutboundQueue
	}
	return &Registry{
		limits:  limits,
		clock:   clk,
		logger:  logger,
		clients: make(map[wire.ClientID]*Client),
	}
}

// Register allocates a client for a newly accepted transport. The
// client starts in Connecting.
func (r *Registry) Register(peer Peer) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	c := &Client{
		ID:          r.lastID,
		Peer:        peer,
		ConnectedAt: r.clock.Now(),
		Inbound:     NewQueue[wire.Message](r.limits.InboundQueue),
		Outbound:    NewQueue[wire.Message](r.limits.OutboundQueue),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.clients[c.ID] = c
	return c
}

// BeginHandshake moves c from Connecting to Handshaking.
func (r *Registry) BeginHandshake(c *Client) error {
	if !c.advance(Connecting, Handshaking) {
		return fmt.Errorf("%s: cannot begin handshake from %s", c.ID, c.State())
	}
	return nil
}

// Activate completes the handshake: records the negotiated name and
// capabilities and moves c to Active.
func (r *Registry) Activate(c *Client, name string, capabilities []string) error {
	c.mu.Lock()
	c.name = name
	c.capabilities = slices.Clone(capabilities)
	c.mu.Unlock()
	if !c.advance(Handshaking, Active) {
		return fmt.Errorf("%s: cannot activate from %s", c.ID, c.State())
	}
	r.logger.Info("client active", "client", c.ID, "name", name, "pid", c.Peer.PID, "capabilities", capabilities)
	return nil
}

// Get returns a registered client that has not reached Closed.
func (r *Registry) Get(id wire.ClientID) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Active returns Active clients in ascending ID order.
func (r *Registry) Active() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.State() == Active {
			active = append(active, c)
		}
	}
	slices.SortFunc(active, func(a, b *Client) int { return cmp.Compare(a.ID, b.ID) })
	return active
}

// All returns every registered client in ascending ID order.
func (r *Registry) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	slices.SortFunc(all, func(a, b *Client) int { return cmp.Compare(a.ID, b.ID) })
	return all
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// EnqueueInbound hands a decoded message to the engine. It blocks while
// the inbound queue is full; if it stays full longer than the stall
// limit the client is disconnected. Messages are refused once the
// client is Closing.
func (r *Registry) EnqueueInbound(ctx context.Context, c *Client, message wire.Message) error {
	err := c.Inbound.TryPush(message)
	if !errors.Is(err, ErrQueueFull) {
		return err
	}
	if r.limits.InboundStall > 0 {
		watchdog := r.clock.AfterFunc(r.limits.InboundStall, func() {
			r.Disconnect(c.ID, ErrInboundStalled)
		})
		defer watchdog.Stop()
	}
	return c.Inbound.Push(ctx, message)
}

// Send queues message for delivery to c. A full outbound queue
// disconnects the client rather than dropping the message or growing
// the queue.
func (r *Registry) Send(c *Client, message wire.Message) error {
	switch c.State() {
	case Handshaking, Active:
	default:
		return fmt.Errorf("%s is %s", c.ID, c.State())
	}
	err := c.Outbound.TryPush(message)
	if errors.Is(err, ErrQueueFull) {
		r.Disconnect(c.ID, ErrOutboundOverflow)
		return fmt.Errorf("%s: %w", c.ID, ErrOutboundOverflow)
	}
	return err
}

// DrainOutbound takes everything queued for delivery to c.
func (r *Registry) DrainOutbound(c *Client) []wire.Message {
	return c.Outbound.Drain()
}

// Disconnect moves a client to Closing and schedules its teardown.
// It is idempotent and safe to call from any goroutine: only the first
// call for a client records reason and reports true.
func (r *Registry) Disconnect(id wire.ClientID, reason error) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	for {
		state := c.State()
		if state >= Closing {
			return false
		}
		if c.advance(state, Closing) {
			break
		}
	}

	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	c.Inbound.Close()
	close(c.closing)

	r.mu.Lock()
	r.closing = append(r.closing, c)
	r.mu.Unlock()
	r.logger.Info("client closing", "client", id, "reason", reason)
	return true
}

// TakeClosing returns clients that entered Closing since the last
// call, in ascending ID order.
func (r *Registry) TakeClosing() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	closing := r.closing
	r.closing = nil
	slices.SortFunc(closing, func(a, b *Client) int { return cmp.Compare(a.ID, b.ID) })
	return closing
}

// Remove marks c Closed and forgets it. The engine calls it once the
// client's nodes and pending calls have been torn down.
func (r *Registry) Remove(c *Client) {
	if !c.advance(Closing, Closed) {
		return
	}
	r.mu.Lock()
	delete(r.clients, c.ID)
	r.mu.Unlock()
	c.Outbound.Close()
	close(c.done)
}
