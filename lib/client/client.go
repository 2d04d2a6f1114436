// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/stardust/lib/wire"
)

// State is a connection's position in its lifecycle. States only move
// forward.
type State int32

const (
	// Connecting: transport accepted, nothing exchanged yet.
	Connecting State = iota

	// Handshaking: waiting for the version negotiation call.
	Handshaking

	// Active: handshake done, queues in use.
	Active

	// Closing: no new inbound admitted; queued outbound is flushed
	// within a grace period while the engine tears the client down.
	Closing

	// Closed: removed from the registry. Terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Disconnect reasons recorded by the server itself. Transport and
// protocol failures are recorded as the error that caused them.
var (
	ErrOutboundOverflow = errors.New("outbound queue overflow")
	ErrInboundStalled   = errors.New("inbound queue stalled")
	ErrPeerClosed       = errors.New("peer closed connection")
	ErrHandshake        = errors.New("handshake failed")
	ErrKicked           = errors.New("disconnected by administrator")
	ErrShutdown         = errors.New("server shutting down")
)

// Peer describes the process on the other end of a local transport.
// Fields are zero when the transport cannot report them.
type Peer struct {
	PID     int32  `cbor:"pid,omitempty"`
	UID     uint32 `cbor:"uid,omitempty"`
	Command string `cbor:"command,omitempty"`
	Cwd     string `cbor:"cwd,omitempty"`
	Address string `cbor:"address,omitempty"`
}

// Client is one connected peer.
type Client struct {
	ID          wire.ClientID
	Peer        Peer
	ConnectedAt time.Time

	// Inbound carries decoded messages from the connection reader to
	// the engine; Outbound carries messages from the engine to the
	// connection writer.
	Inbound  *Queue[wire.Message]
	Outbound *Queue[wire.Message]

	state   atomic.Int32
	lastSeq atomic.Uint64

	mu           sync.Mutex
	name         string
	capabilities []string
	reason       error

	closing chan struct{}
	done    chan struct{}
}

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) advance(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// NextSeq returns a fresh sequence number for a server-to-client call.
func (c *Client) NextSeq() uint64 { return c.lastSeq.Add(1) }

// Name returns the name the client gave during the handshake.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Capabilities returns the capabilities negotiated during the
// handshake.
func (c *Client) Capabilities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.capabilities)
}

// HasCapability reports whether capability was negotiated.
func (c *Client) HasCapability(capability string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.capabilities, capability)
}

// Reason returns why the client is closing, or nil while it is not.
func (c *Client) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Closing is closed when the client leaves Active (or never reaches
// it).
func (c *Client) Closing() <-chan struct{} { return c.closing }

// Done is closed when the client reaches Closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Snapshot is a copy of a client's observable state.
type Snapshot struct {
	ID           wire.ClientID `cbor:"id"`
	Name         string        `cbor:"name,omitempty"`
	State        string        `cbor:"state"`
	Peer         Peer          `cbor:"peer"`
	Capabilities []string      `cbor:"capabilities,omitempty"`
	ConnectedAt  time.Time     `cbor:"connected_at"`
	Inbound      int           `cbor:"inbound"`
	Outbound     int           `cbor:"outbound"`
}

// Snapshot captures c for status reporting.
func (c *Client) Snapshot() Snapshot {
	return Snapshot{
		ID:           c.ID,
		Name:         c.Name(),
		State:        c.State().String(),
		Peer:         c.Peer,
		Capabilities: c.Capabilities(),
		ConnectedAt:  c.ConnectedAt,
		Inbound:      c.Inbound.Len(),
		Outbound:     c.Outbound.Len(),
	}
}
