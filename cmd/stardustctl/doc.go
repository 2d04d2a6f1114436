// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Stardustctl inspects and controls a running stardust server through
// its admin socket.
//
//	stardustctl [--socket PATH] status
//	stardustctl clients
//	stardustctl tree
//	stardustctl kick <client-id>
//	stardustctl save
//
// The admin socket defaults to $STARDUST_INSTANCE.admin, so commands
// run from a client launched by the server reach that server. Output
// is styled when stdout is a terminal and plain otherwise.
package main
