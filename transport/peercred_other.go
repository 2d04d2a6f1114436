// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package transport

import (
	"net"

	"github.com/bureau-foundation/stardust/lib/client"
)

func peerCredentials(*net.UnixConn) client.Peer {
	return client.Peer{}
}
