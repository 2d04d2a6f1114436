// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/stardust/lib/admin"
	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/process"
	"github.com/bureau-foundation/stardust/lib/session"
	"github.com/bureau-foundation/stardust/lib/version"
	"github.com/bureau-foundation/stardust/lib/wire"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout *os.File) error {
	var socketPath string
	var timeout time.Duration
	var showVersion bool

	flagSet := pflag.NewFlagSet("stardustctl", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&socketPath, "socket", "", "admin socket (default: $STARDUST_INSTANCE.admin)")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the server")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetInterspersed(false)
	if err := flagSet.Parse(args); err != nil {
		return process.Usagef("%v", err)
	}
	if showVersion {
		fmt.Fprintf(stdout, "stardustctl %s\n", version.Info())
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(flagSet)
		return process.Usagef("no command given")
	}

	if socketPath == "" {
		instance := os.Getenv(session.InstanceEnv)
		if instance == "" {
			return process.Usagef("--socket not given and %s is not set", session.InstanceEnv)
		}
		socketPath = instance + ".admin"
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	width := 100
	styled := term.IsTerminal(int(stdout.Fd()))
	if styled {
		if columns, _, err := term.GetSize(int(stdout.Fd())); err == nil && columns > 0 {
			width = columns
		}
	}
	out := newRenderer(stdout, styled, width)
	return execute(ctx, admin.NewClient(socketPath), out, rest[0], rest[1:])
}

// execute runs one command against the admin client.
func execute(ctx context.Context, adminClient *admin.Client, out *renderer, command string, args []string) error {
	switch command {
	case "status":
		var status admin.Status
		if err := adminClient.Call(ctx, "status", nil, &status); err != nil {
			return err
		}
		out.status(status)

	case "clients":
		var clients []client.Snapshot
		if err := adminClient.Call(ctx, "clients", nil, &clients); err != nil {
			return err
		}
		out.clients(clients)

	case "tree":
		var roots []admin.TreeNode
		if err := adminClient.Call(ctx, "tree", nil, &roots); err != nil {
			return err
		}
		out.tree(roots)

	case "kick":
		if len(args) != 1 {
			return process.Usagef("usage: stardustctl kick <client-id>")
		}
		id, err := parseClientID(args[0])
		if err != nil {
			return err
		}
		if err := adminClient.Call(ctx, "disconnect", map[string]any{"client": id}, nil); err != nil {
			return err
		}
		out.line("disconnected %s", id)

	case "save":
		var result admin.SaveResult
		if err := adminClient.Call(ctx, "save-session", nil, &result); err != nil {
			return err
		}
		out.line("saved session %s (%d clients)", result.Session, result.Clients)

	default:
		return process.Usagef("unknown command %q (want status, clients, tree, kick or save)", command)
	}
	return nil
}

// parseClientID accepts "3" or "client/3".
func parseClientID(text string) (wire.ClientID, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(text, "client/"), 10, 64)
	if err != nil || value == 0 {
		return 0, process.Usagef("invalid client ID %q", text)
	}
	return wire.ClientID(value), nil
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `stardustctl: inspect and control a running stardust server.

Usage:
  stardustctl [flags] <command> [args]

Commands:
  status           server version, uptime, frame and counts
  clients          connected clients
  tree             the node graph by parent
  kick <client>    disconnect a client
  save             save the current session

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
