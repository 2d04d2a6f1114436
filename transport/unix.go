// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bureau-foundation/stardust/lib/client"
)

var _ Listener = (*UnixListener)(nil)

// maxSocketIndex bounds the search for a free stardust-N socket.
const maxSocketIndex = 32

// staleProbeTimeout bounds the dial used to tell a live socket from a
// leftover file.
const staleProbeTimeout = 500 * time.Millisecond

// UnixListener accepts clients on a Unix domain socket.
type UnixListener struct {
	listener *net.UnixListener
	path     string
}

// ListenUnix listens on path. A leftover socket file nobody is
// listening on is removed first; a socket with a live listener is an
// error.
func ListenUnix(path string) (*UnixListener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if inUse(path) {
		return nil, fmt.Errorf("socket %s is in use by another server", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return &UnixListener{listener: listener, path: path}, nil
}

// FreeSocketPath returns the first dir/stardust-N with no live
// listener.
func FreeSocketPath(dir string) (string, error) {
	for index := range maxSocketIndex {
		path := filepath.Join(dir, "stardust-"+strconv.Itoa(index))
		if !inUse(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free socket in %s (tried stardust-0 through stardust-%d)", dir, maxSocketIndex-1)
}

// DefaultSocketDir returns $XDG_RUNTIME_DIR, or the temporary directory
// when it is unset.
func DefaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

func inUse(path string) bool {
	conn, err := net.DialTimeout("unix", path, staleProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Accept waits for the next client.
func (l *UnixListener) Accept() (net.Conn, client.Peer, error) {
	conn, err := l.listener.AcceptUnix()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, client.Peer{}, ErrClosed
		}
		return nil, client.Peer{}, err
	}
	peer := peerCredentials(conn)
	peer.Address = l.path
	return conn, peer, nil
}

// Address returns the socket path.
func (l *UnixListener) Address() string { return l.path }

// Close stops listening and removes the socket file.
func (l *UnixListener) Close() error {
	return l.listener.Close()
}
