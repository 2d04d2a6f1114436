// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Environment variables handed to launched clients.
const (
	// InstanceEnv names the server instance a client should connect
	// to: the socket path.
	InstanceEnv = "STARDUST_INSTANCE"

	// StartupTokenEnv carries the token a restored client redeems
	// through interface.restore_state.
	StartupTokenEnv = "STARDUST_STARTUP_TOKEN"
)

// Launcher starts client processes with the connection environment.
type Launcher struct {
	// Instance is exported as STARDUST_INSTANCE.
	Instance string

	// Output receives the children's stdout and stderr. Nil discards
	// it.
	Output io.Writer
}

func (l Launcher) command(argv []string, dir string, extra ...string) *exec.Cmd {
	command := exec.Command(argv[0], argv[1:]...)
	command.Dir = dir
	command.Env = append(os.Environ(), InstanceEnv+"="+l.Instance)
	command.Env = append(command.Env, extra...)
	command.Stdout = l.Output
	command.Stderr = l.Output
	return command
}

// RunScript starts the startup script at path. A missing script is
// not an error and returns nil.
func (l Launcher) RunScript(path string) (*exec.Cmd, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("startup script: %w", err)
	}
	if info.Mode()&0o111 == 0 {
		if err := os.Chmod(path, info.Mode()|0o755); err != nil {
			return nil, fmt.Errorf("making startup script executable: %w", err)
		}
	}
	command := l.command([]string{path}, "")
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}
	return command, nil
}

// Restore relaunches one saved client with a startup token issued by
// store for its data.
func (l Launcher) Restore(store *Store, state ClientState) (*exec.Cmd, error) {
	if len(state.Command) == 0 {
		return nil, fmt.Errorf("client %q: no command saved", state.Name)
	}
	token := store.Issue(state.Data)
	command := l.command(state.Command, state.Dir, StartupTokenEnv+"="+token)
	if err := command.Start(); err != nil {
		store.TakeState(token)
		return nil, fmt.Errorf("relaunching %q: %w", state.Name, err)
	}
	return command, nil
}
