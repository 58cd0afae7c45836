// Package selector keeps track of the model the agent answers with.
package selector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/ai"
)

const currentModelKey = "selected_model"

var ErrEmptyModel = errors.New("model name is empty")

// KV is a shared key/value store. redisstore.Store implements it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Selector holds the current model in a shared store when one is configured
// and always mirrors it in process, so a store outage degrades to the last
// known value.
type Selector struct {
	kv     KV
	lister ai.ModelLister
	logger *slog.Logger

	mu    sync.RWMutex
	local string
}

// New creates a selector. kv and lister may be nil.
func New(defaultModel string, kv KV, lister ai.ModelLister, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{kv: kv, lister: lister, logger: logger, local: defaultModel}
}

func (s *Selector) Current(ctx context.Context) string {
	if s.kv != nil {
		v, found, err := s.kv.Get(ctx, currentModelKey)
		switch {
		case err != nil:
			s.logger.Warn("model store unavailable, using local value", "error", err)
		case found && v != "":
			s.mu.Lock()
			s.local = v
			s.mu.Unlock()
			return v
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Selector) Select(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return goerr.Wrap(ErrEmptyModel, "cannot select model")
	}
	s.mu.Lock()
	s.local = model
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Set(ctx, currentModelKey, model); err != nil {
			s.logger.Warn("model store unavailable, selection kept locally", "model", model, "error", err)
		}
	}
	return nil
}

// List asks the provider for its models. When the provider cannot answer,
// the current model is the only entry.
func (s *Selector) List(ctx context.Context) []string {
	current := s.Current(ctx)
	if s.lister == nil {
		return []string{current}
	}
	models, err := s.lister.ListModels(ctx)
	if err != nil || len(models) == 0 {
		if err != nil {
			s.logger.Warn("list models failed", "error", err)
		}
		return []string{current}
	}
	return models
}
