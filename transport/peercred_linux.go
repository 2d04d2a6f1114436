// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/stardust/lib/client"
)

// peerCredentials reads SO_PEERCRED and, from /proc, the peer's command
// line and working directory. Failures leave fields zero; a client is
// never refused for missing metadata.
func peerCredentials(conn *net.UnixConn) client.Peer {
	var peer client.Peer
	raw, err := conn.SyscallConn()
	if err != nil {
		return peer
	}
	var credentials *unix.Ucred
	controlErr := raw.Control(func(fd uintptr) {
		credentials, err = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil || err != nil || credentials == nil {
		return peer
	}
	peer.PID = credentials.Pid
	peer.UID = credentials.Uid

	proc := "/proc/" + strconv.Itoa(int(credentials.Pid))
	if cmdline, err := os.ReadFile(proc + "/cmdline"); err == nil {
		peer.Command = strings.TrimRight(strings.ReplaceAll(string(cmdline), "\x00", " "), " ")
	}
	if cwd, err := os.Readlink(proc + "/cwd"); err == nil {
		peer.Cwd = cwd
	}
	return peer
}
