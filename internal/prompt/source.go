// Package prompt resolves the agent's system prompt.
package prompt

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/memory"
)

// SystemMemoryKey is the system memory entry used when no prompt file exists.
const SystemMemoryKey = "system_prompt"

const Default = "You are a helpful assistant. Answer concisely. Use the available tools " +
	"to look up data, documents and images instead of guessing, and say so when " +
	"you cannot find an answer."

type SystemReader interface {
	GetSystem(ctx context.Context, key string) (*memory.SystemEntry, error)
}

// Source serves the prompt file's content, falling back to system memory and
// then to Default.
type Source struct {
	path   string
	sys    SystemReader
	logger *slog.Logger

	mu   sync.RWMutex
	text string
}

// NewSource reads path once. sys may be nil.
func NewSource(path string, sys SystemReader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{path: path, sys: sys, logger: logger}
	if err := s.Reload(); err != nil {
		logger.Warn("system prompt file not loaded", "path", path, "error", err)
	}
	return s
}

// Reload rereads the prompt file. A missing file clears the cached prompt.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		s.set("")
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return goerr.Wrap(err, "failed to read system prompt", goerr.V("path", s.path))
	}
	s.set(strings.TrimSpace(string(b)))
	s.logger.Info("system prompt loaded", "path", s.path, "length", len(b))
	return nil
}

func (s *Source) set(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

func (s *Source) Prompt(ctx context.Context) string {
	s.mu.RLock()
	text := s.text
	s.mu.RUnlock()
	if text != "" {
		return text
	}

	if s.sys != nil {
		e, err := s.sys.GetSystem(ctx, SystemMemoryKey)
		switch {
		case err == nil && strings.TrimSpace(e.Content) != "":
			return e.Content
		case err != nil && !errors.Is(err, memory.ErrNotFound):
			s.logger.Warn("failed to read system prompt from memory", "error", err)
		}
	}
	return Default
}

// Watch reloads the prompt whenever the file changes until ctx is done. The
// watcher is registered before Watch returns.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create prompt watcher")
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return goerr.Wrap(err, "failed to watch prompt dir", goerr.V("dir", dir))
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("system prompt reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("prompt watcher error", "error", err)
			}
		}
	}()
	return nil
}
