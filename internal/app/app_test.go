package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/logger"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		DBDriver:              "sqlite",
		DBDSN:                 filepath.Join(dir, "app.db"),
		JWTSecret:             "test-secret",
		BcryptCost:            4,
		ChatContextWindowSize: 20,
		DefaultMaxTurns:       10,
		AgentMode:             "plain",
		AIProvider:            "ollama",
		OllamaBaseURL:         "http://127.0.0.1:1",
		OllamaModel:           "llama3",
		UploadDir:             filepath.Join(dir, "uploads"),
		UploadMaxBytes:        1024,
	}
}

func TestNew_PlainMode(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	gdb, err := app.Open(cfg)
	gt.NoError(t, err).Required()
	a, err := app.New(ctx, cfg, gdb, logger.Nop())
	gt.NoError(t, err).Required()
	defer a.Close()

	gt.Value(t, a.Selector.Current(ctx)).Equal("llama3")
	// the provider is unreachable, so the list falls back to the current model
	gt.Value(t, a.Selector.List(ctx)).Equal([]string{"llama3"})

	gt.NoError(t, a.SeedAccounts(ctx)).Required()
	gt.NoError(t, a.SeedAccounts(ctx)).Required()
	users, err := a.Auth.ListAccounts(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, users).Length(2)
}

func TestNew_UnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.AgentMode = "telepathy"

	gdb, err := app.Open(cfg)
	gt.NoError(t, err).Required()
	_, err = app.New(context.Background(), cfg, gdb, logger.Nop())
	gt.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	reg := app.NewRegistry(testConfig(t))
	gt.Value(t, reg.Names()).Equal([]string{"ollama", "openrouter"})

	_, err := reg.Get(context.Background(), "openrouter", "")
	gt.Error(t, err)
}
