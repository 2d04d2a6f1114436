// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/codec"
)

// Latest names the symlink to the most recently saved session.
const Latest = "latest"

// stateSuffix ends every client state file name.
const stateSuffix = ".state"

// ErrNoSession is returned by Load for a session that does not exist.
var ErrNoSession = errors.New("no such session")

// Store manages session directories under a state directory and the
// startup tokens handed to relaunched clients. Safe for concurrent
// use.
type Store struct {
	dir    string
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]codec.RawMessage
}

// NewStore returns a Store rooted at dir. The directory is created on
// the first Save.
func NewStore(dir string, clk clock.Clock, logger *slog.Logger) *Store {
	return &Store{
		dir:     dir,
		clock:   clk,
		logger:  logger,
		pending: make(map[string]codec.RawMessage),
	}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.clock.Now()), ulid.DefaultEntropy()).String()
}

// Save writes states as a new session and points Latest at it.
// Returns the session ID.
func (s *Store) Save(states []ClientState) (string, error) {
	id := s.newID()
	sessionDir := filepath.Join(s.dir, id)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}
	for i, state := range states {
		data, err := Encode(state)
		if err != nil {
			return "", err
		}
		path := filepath.Join(sessionDir, stateFileName(i, state.Name))
		if err := writeFile(path, data); err != nil {
			return "", err
		}
	}
	if err := s.link(id); err != nil {
		return "", err
	}
	s.logger.Info("session saved", "session", id, "clients", len(states), "directory", sessionDir)
	return id, nil
}

// stateFileName orders files by save position and keeps the client
// name readable.
func stateFileName(index int, name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if clean == "" {
		clean = "client"
	}
	return fmt.Sprintf("%03d-%s%s", index, clean, stateSuffix)
}

// link replaces the Latest symlink by renaming a fresh one over it.
func (s *Store) link(id string) error {
	temporary := filepath.Join(s.dir, Latest+".tmp")
	os.Remove(temporary)
	if err := os.Symlink(id, temporary); err != nil {
		return fmt.Errorf("creating latest symlink: %w", err)
	}
	if err := os.Rename(temporary, filepath.Join(s.dir, Latest)); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("updating latest symlink: %w", err)
	}
	return nil
}

// Load reads every client state of a session. id is a session ID or
// Latest. Corrupt files are skipped with a warning; a session in which
// nothing could be read is an error.
func (s *Store) Load(id string) ([]ClientState, error) {
	if id == "" || strings.ContainsRune(id, filepath.Separator) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid session ID %q", id)
	}
	sessionDir := filepath.Join(s.dir, id)
	entries, err := os.ReadDir(sessionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var states []ClientState
	var failures int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stateSuffix) {
			continue
		}
		path := filepath.Join(sessionDir, entry.Name())
		data, err := os.ReadFile(path)
		if err == nil {
			var state ClientState
			if state, err = Decode(data); err == nil {
				states = append(states, state)
				continue
			}
		}
		failures++
		s.logger.Warn("skipping unreadable client state", "path", path, "error", err)
	}
	if len(states) == 0 && failures > 0 {
		return nil, fmt.Errorf("session %s: no readable client states", id)
	}
	return states, nil
}

// Sessions lists saved session IDs, oldest first.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := ulid.ParseStrict(entry.Name()); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Issue records data under a fresh startup token.
func (s *Store) Issue(data codec.RawMessage) string {
	token := s.newID()
	s.mu.Lock()
	s.pending[token] = data
	s.mu.Unlock()
	return token
}

// TakeState redeems a startup token. Each token works once.
func (s *Store) TakeState(token string) (codec.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	return data, ok
}

// writeFile writes data to path through a synced temporary file.
func writeFile(path string, data []byte) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	return nil
}
