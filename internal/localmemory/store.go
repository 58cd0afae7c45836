// Package localmemory is a flat JSON transcript for offline CLI use.
package localmemory

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/ai"
)

const DefaultKeepLast = 30

type Store struct {
	path     string
	keepLast int
	mu       sync.Mutex
}

func New(path string, keepLast int) *Store {
	if keepLast <= 0 {
		keepLast = DefaultKeepLast
	}
	return &Store{path: path, keepLast: keepLast}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored turns. A missing or unreadable file is an empty
// history.
func (s *Store) Load() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() []ai.Message {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return []ai.Message{}
	}
	var out []ai.Message
	if err := json.Unmarshal(b, &out); err != nil {
		return []ai.Message{}
	}
	return out
}

func (s *Store) save(items []ai.Message) error {
	if len(items) > s.keepLast {
		items = items[len(items)-s.keepLast:]
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode local memory")
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create local memory dir", goerr.V("dir", dir))
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write local memory", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return goerr.Wrap(err, "failed to replace local memory", goerr.V("path", s.path))
	}
	return nil
}

// Append adds turns and keeps only the last keepLast.
func (s *Store) Append(items ...ai.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(append(s.load(), items...))
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return goerr.Wrap(err, "failed to clear local memory", goerr.V("path", s.path))
	}
	return nil
}
