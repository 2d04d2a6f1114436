// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/stardust/lib/aspects"
	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/dispatch"
	"github.com/bureau-foundation/stardust/lib/testutil"
	"github.com/bureau-foundation/stardust/lib/wire"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleState(t *testing.T) ClientState {
	t.Helper()
	data, err := wire.Marshal(map[string]any{"open": []string{"notes.txt"}, "anchor": wire.Ref(4)})
	if err != nil {
		t.Fatal(err)
	}
	return ClientState{
		Name:    "editor",
		Command: []string{"/usr/bin/flatland-editor", "--restore"},
		Dir:     "/home/user",
		Data:    data,
	}
}

func TestStateFileVerifiesChecksum(t *testing.T) {
	t.Parallel()
	state := sampleState(t)
	data, err := Encode(state)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Name != state.Name || decoded.Dir != state.Dir || string(decoded.Data) != string(state.Data) {
		t.Errorf("decoded %+v, want %+v", decoded, state)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", data[:10]},
		{"wrong magic", append([]byte("XXXX"), data[4:]...)},
		{"truncated payload", data[:len(data)-3]},
		{"checksum altered", func() []byte {
			altered := append([]byte(nil), data...)
			altered[8] ^= 0xff
			return altered
		}()},
	}
	for _, test := range tests {
		if _, err := Decode(test.data); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Decode error = %v, want ErrCorrupt", test.name, err)
		}
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state"), clock.Fake(epoch), testutil.Logger(t))
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	state := sampleState(t)
	other := ClientState{Name: "clock widget / v2", Command: []string{"clockd"}}

	id, err := store.Save([]ClientState{state, other})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	target, err := os.Readlink(filepath.Join(store.Dir(), Latest))
	if err != nil || target != id {
		t.Fatalf("latest -> %q (%v), want %q", target, err, id)
	}

	for _, name := range []string{id, Latest} {
		states, err := store.Load(name)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if len(states) != 2 || states[0].Name != "editor" || states[1].Name != other.Name {
			t.Errorf("Load(%s) = %+v", name, states)
		}
	}

	entries, err := os.ReadDir(filepath.Join(store.Dir(), id))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.ContainsAny(strings.TrimSuffix(entry.Name(), stateSuffix), " /.") {
			t.Errorf("unsafe state file name %q", entry.Name())
		}
	}
}

func TestLatestFollowsNewestSave(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(epoch)
	store := NewStore(t.TempDir(), fake, testutil.Logger(t))
	first, err := store.Save([]ClientState{{Name: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	fake.Advance(time.Minute)
	second, err := store.Save([]ClientState{{Name: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	states, err := store.Load(Latest)
	if err != nil || len(states) != 1 || states[0].Name != "b" {
		t.Fatalf("latest = %+v, %v", states, err)
	}
	sessions, err := store.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0] != first || sessions[1] != second {
		t.Errorf("Sessions = %v, want [%s %s]", sessions, first, second)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	if _, err := store.Load("01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, ErrNoSession) {
		t.Errorf("missing session: %v, want ErrNoSession", err)
	}
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := store.Load(id); err == nil {
			t.Errorf("Load(%q) accepted", id)
		}
	}

	id, err := store.Save([]ClientState{{Name: "only"}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(store.Dir(), id, stateFileName(0, "only"))
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(id); err == nil {
		t.Error("session with only corrupt files loaded")
	}
}

func TestStartupTokensAreSingleUse(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	first := store.Issue(codec.RawMessage{0x01})
	second := store.Issue(codec.RawMessage{0x02})
	if first == second {
		t.Fatal("tokens collide")
	}
	data, ok := store.TakeState(second)
	if !ok || len(data) != 1 || data[0] != 0x02 {
		t.Errorf("TakeState(second) = %v, %v", data, ok)
	}
	if _, ok := store.TakeState(second); ok {
		t.Error("token redeemed twice")
	}
	if _, ok := store.TakeState("unknown"); ok {
		t.Error("unknown token redeemed")
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()
	logger := testutil.Logger(t)
	fake := clock.Fake(epoch)
	builtins, err := aspects.New(aspects.Deps{})
	if err != nil {
		t.Fatal(err)
	}
	clients := client.NewRegistry(client.Limits{}, fake, logger)
	engine, err := dispatch.New(dispatch.Config{InterfaceAspects: []string{aspects.Interface}}, builtins.Registry, clients, fake, logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	connect := func(name, command string, capabilities ...string) *client.Client {
		c := clients.Register(client.Peer{Command: command, Cwd: "/srv"})
		if err := clients.BeginHandshake(c); err != nil {
			t.Fatal(err)
		}
		if err := clients.Activate(c, name, capabilities); err != nil {
			t.Fatal(err)
		}
		return c
	}
	saver := connect("saver", "/usr/bin/saver --flag", wire.CapabilitySaveState)
	failing := connect("failing", "/usr/bin/failing", wire.CapabilitySaveState)
	connect("plain", "/usr/bin/plain")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	type outcome struct {
		states []ClientState
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		states, err := Collect(ctx, engine, clients, logger)
		done <- outcome{states, err}
	}()

	// Tick until both capable clients have been asked, answering as
	// the requests arrive.
	answered := 0
	var frame uint64
	deadline := time.Now().Add(10 * time.Second)
	for answered < 2 {
		if time.Now().After(deadline) {
			t.Fatal("save_state requests never arrived")
		}
		frame++
		engine.Tick(clock.Frame{Number: frame})
		for _, c := range []*client.Client{saver, failing} {
			for _, message := range c.Outbound.Drain() {
				if message.Kind != wire.KindCall || message.Member != SaveStateMethod {
					continue
				}
				reply, err := wire.NewResponse(message.Seq, map[string]string{"from": c.Name()})
				if c == failing {
					reply = wire.NewErrorResponse(message.Seq, wire.Errorf(wire.CodeAspectError, "disk full"))
				} else if err != nil {
					t.Fatal(err)
				}
				if err := c.Inbound.TryPush(reply); err != nil {
					t.Fatal(err)
				}
				answered++
			}
		}
		time.Sleep(time.Millisecond)
	}
	frame++
	engine.Tick(clock.Frame{Number: frame})

	result := testutil.RequireReceive(t, done, 10*time.Second, "Collect did not return")
	if result.err != nil {
		t.Fatalf("Collect: %v", result.err)
	}
	if len(result.states) != 1 {
		t.Fatalf("collected %+v, want only saver", result.states)
	}
	state := result.states[0]
	if state.Name != "saver" || state.Dir != "/srv" || len(state.Command) != 2 || state.Command[1] != "--flag" {
		t.Errorf("state = %+v", state)
	}
	var data map[string]string
	if err := wire.Unmarshal(state.Data, &data); err != nil || data["from"] != "saver" {
		t.Errorf("data = %v, %v", data, err)
	}
}

func TestRestoreLaunchesWithToken(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	directory := t.TempDir()
	output := filepath.Join(directory, "env")
	launcher := Launcher{Instance: "/run/user/1000/stardust-0"}

	command, err := launcher.Restore(store, ClientState{
		Name:    "probe",
		Command: []string{"/bin/sh", "-c", `printf '%s\n%s\n%s' "$STARDUST_INSTANCE" "$STARDUST_STARTUP_TOKEN" "$PWD" > env`},
		Dir:     directory,
		Data:    codec.RawMessage{0xf5},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := command.Wait(); err != nil {
		t.Fatalf("child: %v", err)
	}
	written, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(written), "\n")
	if len(lines) != 3 || lines[0] != launcher.Instance {
		t.Fatalf("child saw %q", written)
	}
	data, ok := store.TakeState(lines[1])
	if !ok || len(data) != 1 || data[0] != 0xf5 {
		t.Errorf("token %q redeemed %v, %v", lines[1], data, ok)
	}

	if _, err := launcher.Restore(store, ClientState{Name: "nothing"}); err == nil {
		t.Error("Restore without a command succeeded")
	}
}

func TestRunScript(t *testing.T) {
	t.Parallel()
	launcher := Launcher{Instance: "stardust-test"}
	command, err := launcher.RunScript(filepath.Join(t.TempDir(), "missing"))
	if err != nil || command != nil {
		t.Fatalf("missing script = %v, %v", command, err)
	}

	directory := t.TempDir()
	script := filepath.Join(directory, "startup")
	marker := filepath.Join(directory, "ran")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"$STARDUST_INSTANCE\" > "+marker+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	command, err = launcher.RunScript(script)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if err := command.Wait(); err != nil {
		t.Fatalf("script: %v", err)
	}
	written, err := os.ReadFile(marker)
	if err != nil || strings.TrimSpace(string(written)) != "stardust-test" {
		t.Errorf("marker = %q, %v", written, err)
	}
}
