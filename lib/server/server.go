// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/version"
	"github.com/bureau-foundation/stardust/lib/wire"
	"github.com/bureau-foundation/stardust/transport"
)

// Config tunes connection handling. Zero fields take the defaults
// below.
type Config struct {
	// MaxPayload bounds incoming frame payloads.
	MaxPayload int

	// CompressThreshold is the smallest outgoing payload compressed
	// for clients that negotiated lz4.
	CompressThreshold int

	// HandshakeTimeout bounds the wait for the handshake call.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// CloseGrace bounds the flush of queued outbound messages once a
	// client is Closing.
	CloseGrace time.Duration

	// Capabilities the server is willing to grant.
	Capabilities []string
}

// Defaults for zero Config fields.
const (
	DefaultCompressThreshold = 4096
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultCloseGrace        = time.Second
)

// DefaultCapabilities are granted when Config.Capabilities is nil.
var DefaultCapabilities = []string{wire.CapabilityLZ4, wire.CapabilitySaveState}

func (c Config) withDefaults() Config {
	if c.MaxPayload <= 0 {
		c.MaxPayload = wire.DefaultMaxPayload
	}
	if c.CompressThreshold <= 0 {
		c.CompressThreshold = DefaultCompressThreshold
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.Capabilities == nil {
		c.Capabilities = DefaultCapabilities
	}
	return c
}

// Server accepts connections and runs their I/O.
type Server struct {
	registry *client.Registry
	config   Config
	logger   *slog.Logger

	// connections tracks live connection goroutines so Serve can wait
	// for them on shutdown.
	connections sync.WaitGroup
}

// New returns a server that registers clients in registry.
func New(registry *client.Registry, config Config, logger *slog.Logger) *Server {
	return &Server{
		registry: registry,
		config:   config.withDefaults(),
		logger:   logger,
	}
}

// Serve accepts connections from listener until ctx is cancelled or
// the listener fails, then waits for every connection it started to
// finish. Cancelling ctx disconnects those clients with
// client.ErrShutdown. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener transport.Listener) error {
	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer listener.Close()

	s.logger.Info("accepting clients", "address", listener.Address())

	var serveErr error
	for {
		conn, peer, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("accept failed", "error", err)
				continue
			}
			serveErr = fmt.Errorf("accepting on %s: %w", listener.Address(), err)
			break
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.ServeConn(ctx, conn, peer)
		}()
	}

	s.connections.Wait()
	return serveErr
}

// ServeConn runs one connection to completion and closes conn. It
// returns once both I/O goroutines have stopped; the client may still
// be awaiting teardown by the engine.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, peer client.Peer) {
	c := s.registry.Register(peer)
	logger := s.logger.With("client", c.ID)
	logger.Debug("connection accepted", "pid", peer.PID, "address", peer.Address)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ctx, c, conn, logger)
	}()

	s.read(ctx, c, conn, logger)
	<-writerDone
}

// read runs the handshake and then feeds the inbound queue until the
// client leaves Active.
func (s *Server) read(ctx context.Context, c *client.Client, conn net.Conn, logger *slog.Logger) {
	reader := wire.NewReader(conn, s.config.MaxPayload)

	if err := s.handshake(c, conn, reader); err != nil {
		if s.registry.Disconnect(c.ID, err) {
			logger.Info("handshake rejected", "error", err)
		}
		return
	}

	for {
		message, err := reader.ReadMessage()
		if err != nil {
			s.readFailed(c, err, logger)
			return
		}
		if err := s.registry.EnqueueInbound(ctx, c, message); err != nil {
			// Closed queue: the client is already Closing. A cancelled
			// context is picked up by the writer.
			return
		}
	}
}

func (s *Server) readFailed(c *client.Client, err error, logger *slog.Logger) {
	if c.State() >= client.Closing {
		// The writer closed the transport after a disconnect.
		return
	}
	var reason error
	switch {
	case errors.Is(err, io.EOF):
		reason = client.ErrPeerClosed
	case wire.IsProtocolError(err):
		reason = err
		logger.Warn("protocol error", "error", err)
	default:
		reason = err
	}
	s.registry.Disconnect(c.ID, reason)
}

// handshake reads and answers the version negotiation call. Any
// failure is returned wrapped in client.ErrHandshake; where the peer
// sent a well-formed call it also receives an error response.
func (s *Server) handshake(c *client.Client, conn net.Conn, reader *wire.Reader) error {
	if err := s.registry.BeginHandshake(c); err != nil {
		return fmt.Errorf("%w: %v", client.ErrHandshake, err)
	}

	conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	message, err := reader.ReadMessage()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("%w: reading handshake: %w", client.ErrHandshake, err)
	}

	if !wire.IsHandshake(message) {
		s.reject(c, message, wire.Errorf(wire.CodeMethodNotSupported,
			"first message must be %s.%s on the interface node", wire.InterfaceAspect, wire.HandshakeMethod))
		return fmt.Errorf("%w: first message was %s %s.%s", client.ErrHandshake, message.Kind, message.Aspect, message.Member)
	}

	var request wire.HandshakeRequest
	if err := message.DecodeArgs(&request); err != nil {
		s.reject(c, message, wire.Errorf(wire.CodeInvalidArguments, "handshake: %v", err))
		return fmt.Errorf("%w: decoding request: %v", client.ErrHandshake, err)
	}
	if request.Version != version.Protocol {
		s.reject(c, message, wire.Errorf(wire.CodeInvalidArguments,
			"protocol version %d not supported (server speaks %d)", request.Version, version.Protocol))
		return fmt.Errorf("%w: protocol version %d, want %d", client.ErrHandshake, request.Version, version.Protocol)
	}

	granted := negotiate(request.Capabilities, s.config.Capabilities)
	response, err := wire.NewResponse(message.Seq, wire.HandshakeResponse{
		ClientID:      c.ID,
		ServerVersion: version.Short(),
		Protocol:      version.Protocol,
		Capabilities:  granted,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", client.ErrHandshake, err)
	}
	// Activate first so the client is Active by the time it reads the
	// reply.
	if err := s.registry.Activate(c, request.Name, granted); err != nil {
		return fmt.Errorf("%w: %w", client.ErrHandshake, err)
	}
	return s.registry.Send(c, response)
}

// reject answers a failed handshake call when the peer sent one.
func (s *Server) reject(c *client.Client, message wire.Message, reason *wire.Error) {
	if message.Kind != wire.KindCall {
		return
	}
	_ = s.registry.Send(c, wire.NewErrorResponse(message.Seq, reason))
}

// negotiate returns the requested capabilities the server offers, in
// request order without duplicates.
func negotiate(requested, offered []string) []string {
	var granted []string
	for _, capability := range requested {
		if slices.Contains(offered, capability) && !slices.Contains(granted, capability) {
			granted = append(granted, capability)
		}
	}
	return granted
}

// write delivers outbound messages until the client is Closing, then
// flushes within the close grace and closes the transport.
func (s *Server) write(ctx context.Context, c *client.Client, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()
	writer := wire.NewWriter(conn, wire.EncodeOptions{})
	compressing := false

	send := func(deadline time.Time) error {
		if !compressing && c.HasCapability(wire.CapabilityLZ4) {
			writer.SetOptions(wire.EncodeOptions{CompressThreshold: s.config.CompressThreshold})
			compressing = true
		}
		for _, message := range s.registry.DrainOutbound(c) {
			conn.SetWriteDeadline(deadline)
			if err := writer.WriteMessage(message); err != nil {
				return err
			}
		}
		return nil
	}

	shutdown := ctx.Done()
	for {
		select {
		case <-c.Outbound.Ready():
			if err := send(time.Now().Add(s.config.WriteTimeout)); err != nil {
				if s.registry.Disconnect(c.ID, err) {
					logger.Info("write failed", "error", err)
				}
			}
		case <-shutdown:
			shutdown = nil
			s.registry.Disconnect(c.ID, client.ErrShutdown)
		case <-c.Closing():
			if err := send(time.Now().Add(s.config.CloseGrace)); err != nil {
				logger.Debug("flush on close failed", "error", err)
			}
			logger.Info("connection closed", "reason", c.Reason())
			return
		}
	}
}
