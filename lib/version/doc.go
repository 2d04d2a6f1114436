// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for stardust
// binaries and the client protocol version.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/stardust/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags the commit, dirty flag and build time come from the
// VCS stamp in the binary's build info, else "unknown". Test binaries
// carry no stamp.
//
// [Protocol] is a compile-time constant: it changes only when the wire
// format changes incompatibly.
package version
