// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"net"

	"github.com/bureau-foundation/stardust/lib/client"
)

// ErrClosed is returned by Accept after Close.
var ErrClosed = errors.New("listener closed")

// Listener accepts client connections. Each accepted connection is a
// byte stream; the connection handler frames it with lib/wire.
type Listener interface {
	// Accept blocks until a client connects or the listener is
	// closed, in which case it returns ErrClosed. peer describes the
	// connecting process as far as the transport can tell.
	Accept() (conn net.Conn, peer client.Peer, err error)

	// Address returns the address clients connect to: a socket path
	// or a URL.
	Address() string

	// Close stops accepting. Connections already accepted are not
	// affected.
	Close() error
}
