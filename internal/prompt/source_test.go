package prompt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/logger"
	"github.com/suPer8Hu/agent-backend/internal/memory"
	"github.com/suPer8Hu/agent-backend/internal/prompt"
)

type fakeSystem map[string]string

func (f fakeSystem) GetSystem(ctx context.Context, key string) (*memory.SystemEntry, error) {
	v, ok := f[key]
	if !ok {
		return nil, goerr.Wrap(memory.ErrNotFound, "missing", goerr.V("key", key))
	}
	return &memory.SystemEntry{Key: key, Content: v}, nil
}

func TestSource_Fallbacks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prompt.txt")
	gt.NoError(t, os.WriteFile(path, []byte("  from file \n"), 0o644)).Required()

	sys := fakeSystem{prompt.SystemMemoryKey: "from memory"}
	src := prompt.NewSource(path, sys, logger.Nop())
	gt.Value(t, src.Prompt(ctx)).Equal("from file")

	gt.NoError(t, os.Remove(path)).Required()
	gt.NoError(t, src.Reload()).Required()
	gt.Value(t, src.Prompt(ctx)).Equal("from memory")

	delete(sys, prompt.SystemMemoryKey)
	gt.Value(t, src.Prompt(ctx)).Equal(prompt.Default)

	gt.Value(t, prompt.NewSource("", nil, logger.Nop()).Prompt(ctx)).Equal(prompt.Default)
}

func TestSource_WatchReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "prompt.txt")
	gt.NoError(t, os.WriteFile(path, []byte("v1"), 0o644)).Required()

	src := prompt.NewSource(path, nil, logger.Nop())
	gt.NoError(t, src.Watch(ctx)).Required()

	gt.NoError(t, os.WriteFile(path, []byte("v2"), 0o644)).Required()

	deadline := time.Now().Add(3 * time.Second)
	for src.Prompt(ctx) != "v2" && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	gt.Value(t, src.Prompt(ctx)).Equal("v2")
}
