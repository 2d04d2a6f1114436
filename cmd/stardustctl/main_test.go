// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/stardust/lib/admin"
	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/process"
	"github.com/bureau-foundation/stardust/lib/testutil"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// fakeServer serves canned admin responses and records kicks.
type fakeServer struct {
	mu     sync.Mutex
	kicked []wire.ClientID
}

func startFake(t *testing.T) (*admin.Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	socketPath := filepath.Join(testutil.SocketDir(t), "admin.sock")
	server := admin.NewSocketServer(socketPath, testutil.Logger(t))
	server.Handle("status", func(context.Context, []byte) (any, error) {
		return admin.Status{Version: "0.1.0", Protocol: 1, Frame: 42, Clients: 1, Nodes: 3, Uptime: 90 * time.Second}, nil
	})
	server.Handle("clients", func(context.Context, []byte) (any, error) {
		return []client.Snapshot{{
			ID:    7,
			Name:  "flatland",
			State: "active",
			Peer:  client.Peer{PID: 99, Command: "/usr/bin/flatland --panel"},
		}}, nil
	})
	server.Handle("tree", func(context.Context, []byte) (any, error) {
		return []admin.TreeNode{{
			NodeSummary: admin.NodeSummary{ID: 0, Enabled: true, Aspects: []string{"interface"}},
		}, {
			NodeSummary: admin.NodeSummary{ID: 1, Owner: 7, Enabled: true, Aspects: []string{"node", "spatial"}},
			Children: []admin.TreeNode{
				{NodeSummary: admin.NodeSummary{ID: 2, Owner: 7, Parent: 1, Enabled: false, Aspects: []string{"node", "spatial", "drawable"}}},
				{NodeSummary: admin.NodeSummary{ID: 3, Owner: 7, Parent: 1, Enabled: true, Aspects: []string{"node"}}},
			},
		}}, nil
	})
	server.Handle("disconnect", func(_ context.Context, raw []byte) (any, error) {
		var request struct {
			Client wire.ClientID `cbor:"client"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		if request.Client != 7 {
			return nil, errors.New("client/8 is not connected")
		}
		fake.mu.Lock()
		fake.kicked = append(fake.kicked, request.Client)
		fake.mu.Unlock()
		return nil, nil
	})
	server.Handle("save-session", func(context.Context, []byte) (any, error) {
		return admin.SaveResult{Session: "01JABCDEF", Clients: 1}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "admin server did not stop")
	})

	adminClient := admin.NewClient(socketPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := adminClient.Call(context.Background(), "status", nil, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("admin socket never came up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return adminClient, fake
}

func runCommand(t *testing.T, adminClient *admin.Client, command string, args ...string) (string, error) {
	t.Helper()
	var output bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := execute(ctx, adminClient, newRenderer(&output, false, 80), command, args)
	return output.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()
	adminClient, fake := startFake(t)

	tests := []struct {
		command string
		args    []string
		want    []string
	}{
		{"status", nil, []string{"version", "0.1.0", "frame", "42", "1m30s"}},
		{"clients", nil, []string{"ID", "STATE", "7", "flatland", "active", "/usr/bin/flatland --panel"}},
		{"tree", nil, []string{"node/0", "node/1", "├─ node/2", "└─ node/3", "disabled"}},
		{"kick", []string{"client/7"}, []string{"disconnected client/7"}},
		{"save", nil, []string{"saved session 01JABCDEF (1 clients)"}},
	}
	for _, test := range tests {
		output, err := runCommand(t, adminClient, test.command, test.args...)
		if err != nil {
			t.Fatalf("%s: %v", test.command, err)
		}
		for _, want := range test.want {
			if !strings.Contains(output, want) {
				t.Errorf("%s output missing %q:\n%s", test.command, want, output)
			}
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.kicked) != 1 || fake.kicked[0] != 7 {
		t.Errorf("kicked = %v, want [client/7]", fake.kicked)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	adminClient, _ := startFake(t)

	_, err := runCommand(t, adminClient, "kick", "8")
	var actionErr *admin.ActionError
	if !errors.As(err, &actionErr) || !strings.Contains(actionErr.Message, "not connected") {
		t.Errorf("kick 8: expected an action error, got %v", err)
	}

	for _, args := range [][]string{{"kick"}, {"kick", "zero"}, {"kick", "0"}, {"launch"}} {
		_, err := runCommand(t, adminClient, args[0], args[1:]...)
		var usage *process.UsageError
		if !errors.As(err, &usage) {
			t.Errorf("%q: expected a usage error, got %v", args, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("/usr/bin/a-very-long-command", 10); got != "/usr/bin/…" {
		t.Errorf("truncate long = %q", got)
	}
}
