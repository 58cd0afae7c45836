package selector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/logger"
	"github.com/suPer8Hu/agent-backend/internal/selector"
)

type mapKV struct {
	data map[string]string
	err  error
}

func (m *mapKV) Get(ctx context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(ctx context.Context, key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

type lister struct {
	models []string
	err    error
}

func (l lister) ListModels(ctx context.Context) ([]string, error) { return l.models, l.err }

func TestSelector_SharedStore(t *testing.T) {
	ctx := context.Background()
	kv := &mapKV{data: map[string]string{}}
	s := selector.New("llama3", kv, nil, logger.Nop())

	gt.Value(t, s.Current(ctx)).Equal("llama3")
	gt.NoError(t, s.Select(ctx, " qwen2.5:7b ")).Required()
	gt.Value(t, kv.data["selected_model"]).Equal("qwen2.5:7b")

	// another instance sharing the store sees the selection
	other := selector.New("llama3", kv, nil, logger.Nop())
	gt.Value(t, other.Current(ctx)).Equal("qwen2.5:7b")

	err := s.Select(ctx, "  ")
	gt.Bool(t, errors.Is(err, selector.ErrEmptyModel)).True()
}

func TestSelector_StoreOutageFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := &mapKV{data: map[string]string{}, err: errors.New("connection refused")}
	s := selector.New("llama3", kv, nil, logger.Nop())

	gt.NoError(t, s.Select(ctx, "mistral")).Required()
	gt.Value(t, s.Current(ctx)).Equal("mistral")
}

func TestSelector_List(t *testing.T) {
	ctx := context.Background()

	s := selector.New("llama3", nil, lister{models: []string{"a", "b"}}, logger.Nop())
	gt.Value(t, s.List(ctx)).Equal([]string{"a", "b"})

	s = selector.New("llama3", nil, lister{err: errors.New("offline")}, logger.Nop())
	gt.Value(t, s.List(ctx)).Equal([]string{"llama3"})

	s = selector.New("llama3", nil, nil, logger.Nop())
	gt.Value(t, s.List(ctx)).Equal([]string{"llama3"})
}
