package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/suPer8Hu/agent-backend/internal/app"
	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	return n
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %+v\n", err)
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

	if err := a.Prompt.Watch(ctx); err != nil {
		logger.Warn("system prompt hot reload disabled", "path", cfg.SystemPromptPath, "error", err)
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, rabbitmq.ConsumerOptions{
		Concurrency: workerConcurrency(),
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx, func(ctx context.Context, jobID string) error {
		start := time.Now()
		err := a.Chat.RunJob(ctx, jobID)
		if cost := time.Since(start); cost > 2*time.Second || err != nil {
			logger.Info("job_timing", "job_id", jobID, "total", cost, "failed", err != nil)
		}
		return err
	})
}
