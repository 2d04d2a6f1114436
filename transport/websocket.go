// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/stardust/lib/client"
)

var _ Listener = (*WebSocketListener)(nil)

// WebSocketListener accepts clients over WebSocket, for clients that
// cannot reach the Unix socket (browsers, remote tooling). Each binary
// message carries whole or partial frames; the stream is reassembled
// by WebSocketConn.
type WebSocketListener struct {
	listener net.Listener
	server   *http.Server
	path     string
	logger   *slog.Logger

	accepted  chan accepted
	closed    chan struct{}
	closeOnce sync.Once
	serveErr  chan error
}

type accepted struct {
	conn net.Conn
	peer client.Peer
}

// ListenWebSocket serves WebSocket upgrades on address at path.
func ListenWebSocket(address, path string, logger *slog.Logger) (*WebSocketListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	l := &WebSocketListener{
		listener: listener,
		path:     path,
		logger:   logger,
		accepted: make(chan accepted),
		closed:   make(chan struct{}),
		serveErr: make(chan error, 1),
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn := NewWebSocketConn(ws)
		select {
		case l.accepted <- accepted{conn: conn, peer: client.Peer{Address: r.RemoteAddr}}:
		case <-l.closed:
			conn.Close()
		}
	})
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := l.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		l.serveErr <- err
	}()
	return l, nil
}

// Accept waits for the next upgraded connection.
func (l *WebSocketListener) Accept() (net.Conn, client.Peer, error) {
	select {
	case a := <-l.accepted:
		return a.conn, a.peer, nil
	case <-l.closed:
		return nil, client.Peer{}, ErrClosed
	}
}

// Address returns the ws:// URL clients connect to.
func (l *WebSocketListener) Address() string {
	return "ws://" + l.listener.Addr().String() + l.path
}

// Close stops the HTTP server. Upgraded connections stay open.
func (l *WebSocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
		if serveErr := <-l.serveErr; err == nil {
			err = serveErr
		}
	})
	return err
}

// DialWebSocket connects to a WebSocketListener and returns the stream.
func DialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return NewWebSocketConn(ws), nil
}

// WebSocketConn adapts a message-oriented WebSocket into a net.Conn
// byte stream. Each Write sends one binary message; Read concatenates
// incoming binary messages. Text messages are a protocol violation and
// fail the read.
type WebSocketConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

var _ net.Conn = (*WebSocketConn)(nil)

// NewWebSocketConn wraps ws.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Read(buffer []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.reader == nil {
			messageType, reader, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				return 0, fmt.Errorf("unexpected websocket message type %d", messageType)
			}
			c.reader = reader
		}
		n, err := c.reader.Read(buffer)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WebSocketConn) Write(buffer []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

// Close sends a close frame when possible and closes the socket.
func (c *WebSocketConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *WebSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *WebSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// SetDeadline sets both read and write deadlines.
func (c *WebSocketConn) SetDeadline(deadline time.Time) error {
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(deadline)
}

func (c *WebSocketConn) SetReadDeadline(deadline time.Time) error {
	return c.ws.SetReadDeadline(deadline)
}

func (c *WebSocketConn) SetWriteDeadline(deadline time.Time) error {
	return c.ws.SetWriteDeadline(deadline)
}
