// Package app wires configuration into the services shared by the server,
// the worker and agentctl.
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agent-backend/internal/agent"
	"github.com/suPer8Hu/agent-backend/internal/ai"
	"github.com/suPer8Hu/agent-backend/internal/auth"
	"github.com/suPer8Hu/agent-backend/internal/chat"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/db"
	"github.com/suPer8Hu/agent-backend/internal/memory"
	"github.com/suPer8Hu/agent-backend/internal/models"
	"github.com/suPer8Hu/agent-backend/internal/prompt"
	"github.com/suPer8Hu/agent-backend/internal/selector"
	"github.com/suPer8Hu/agent-backend/internal/store/redisstore"
	"github.com/suPer8Hu/agent-backend/internal/tools"
	"github.com/suPer8Hu/agent-backend/internal/uploads"
)

type App struct {
	Cfg    config.Config
	Logger *slog.Logger
	DB     *gorm.DB

	Auth     *auth.Service
	Memory   *memory.Repo
	Jobs     *chat.Repo
	Chat     *chat.Service
	Selector *selector.Selector
	Prompt   *prompt.Source
	Uploads  *uploads.Store

	closers []func() error
}

// Models lists every table the services own.
func Models() []any {
	all := append([]any{}, memory.Models()...)
	all = append(all, auth.Models()...)
	return append(all, chat.Models()...)
}

// Open connects to the record store and applies migrations.
func Open(cfg config.Config) (*gorm.DB, error) {
	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb, Models()...); err != nil {
		return nil, err
	}
	return gdb, nil
}

// New builds every service from cfg over an opened database.
func New(ctx context.Context, cfg config.Config, gdb *gorm.DB, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger, DB: gdb}

	a.Auth = auth.NewService(gdb, auth.Settings{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		BcryptCost: cfg.BcryptCost,
		OpTimeout:  cfg.DBOpTimeout,
	}, logger)
	a.Memory = memory.NewRepo(gdb, cfg.DBOpTimeout)
	a.Jobs = chat.NewRepo(gdb)

	up, err := uploads.NewStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		return nil, err
	}
	a.Uploads = up

	registry := NewRegistry(cfg)
	streamer := agent.NewProviderRunner(registry, cfg.AIProvider, providerModel(cfg))

	var (
		runner       agent.Runner
		lister       ai.ModelLister
		defaultModel string
	)
	switch cfg.AgentMode {
	case "plain":
		runner = streamer
		defaultModel = providerModel(cfg)
		if p, err := registry.Get(ctx, cfg.AIProvider, defaultModel); err == nil {
			lister, _ = p.(ai.ModelLister)
		}
	case "", "gollem":
		runner = agent.NewGollemRunner(agent.OpenAIClientFactory(cfg.AgentBaseURL, cfg.AgentAPIKey), cfg.AgentModel, logger)
		defaultModel = cfg.AgentModel
		lister = ai.NewOpenRouterProvider(cfg.AgentBaseURL, cfg.AgentAPIKey, cfg.AgentModel, "", "")
	default:
		return nil, goerr.New("unsupported agent mode", goerr.V("agent_mode", cfg.AgentMode))
	}

	var kv selector.KV
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, model selection is process local", "addr", cfg.RedisAddr, "error", err)
		}
		kv = rds
		a.closers = append(a.closers, rds.Close)
	}
	a.Selector = selector.New(defaultModel, kv, lister, logger)
	a.Prompt = prompt.NewSource(cfg.SystemPromptPath, a.Memory, logger)

	deps := tools.Deps{Images: up, Memory: a.Memory}
	if cfg.WarehouseDSN != "" {
		wh, err := tools.OpenWarehouse(cfg.WarehouseDriver, cfg.WarehouseDSN, cfg.WarehouseMaxRows)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Warehouse = wh
		a.closers = append(a.closers, wh.Close)
	}
	if cfg.RAGFlowDatasetID != "" {
		deps.RAGFlow = tools.NewRAGFlow(cfg.RAGFlowBaseURL, cfg.RAGFlowAPIKey, cfg.RAGFlowDatasetID)
	}

	a.Chat = chat.NewService(a.Memory, a.Jobs, runner, chat.Options{
		ContextWindowSize: cfg.ChatContextWindowSize,
		DefaultMaxTurns:   cfg.DefaultMaxTurns,
		Prompt:            a.Prompt,
		Model:             a.Selector,
		Tools:             func(convID int64) []gollem.Tool { return tools.Build(deps, convID) },
		Streamer:          streamer,
		Logger:            logger,
	})
	return a, nil
}

// NewRegistry registers the plain chat providers.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		if m := strings.TrimSpace(model); m != "" {
			return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, goerr.New("OPENROUTER_API_KEY is not set")
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return reg
}

func providerModel(cfg config.Config) string {
	if strings.EqualFold(cfg.AIProvider, "openrouter") {
		return cfg.OpenRouterModel
	}
	return cfg.OllamaModel
}

// SeedAccounts creates the default admin and demo accounts when missing.
func (a *App) SeedAccounts(ctx context.Context) error {
	seeds := []auth.CreateAccountParams{
		{Username: "admin", Password: "admin123", Role: models.RoleAdmin},
		{Username: "demo", Password: "demo123", Role: models.RoleUser},
	}
	for _, p := range seeds {
		_, created, err := a.Auth.EnsureAccount(ctx, p)
		if err != nil {
			return err
		}
		if created {
			a.Logger.Warn("seeded account with default password", "username", p.Username, "role", p.Role)
		}
	}
	return nil
}

// Close releases the optional backends. The database is left to the caller.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
