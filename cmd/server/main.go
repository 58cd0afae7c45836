package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/httpapi"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-backend/internal/store/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return goerr.Wrap(err, "failed to load config")
	}
	logger, closeLog, err := app.NewLogger(cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to open log file", goerr.V("path", cfg.LogFile))
	}
	defer closeLog()

	if !cfg.LogDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := app.Open(cfg)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, gdb, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.SeedAccounts {
		if err := a.SeedAccounts(ctx); err != nil {
			return err
		}
	}

	if err := a.Prompt.Watch(ctx); err != nil {
		logger.Warn("system prompt hot reload disabled", "path", cfg.SystemPromptPath, "error", err)
	}

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Warn("rabbitmq unavailable, async asks disabled", "error", err)
		} else {
			defer pub.Close()
			a.Chat.SetPublisher(pub)
		}
	}

	h := handlers.NewHandler(cfg, logger, a.Auth, a.Memory, a.Chat, a.Selector, a.Uploads)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, a.Auth, logger),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr, "agent_mode", cfg.AgentMode, "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server stopped", goerr.V("addr", cfg.HTTPAddr))
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server gracefully")
	}
	logger.Info("server shutdown completed")
	return nil
}
