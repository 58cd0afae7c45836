package app

import (
	"log/slog"

	"github.com/suPer8Hu/agent-backend/internal/config"
	"github.com/suPer8Hu/agent-backend/internal/logger"
)

// NewLogger builds the console logger from cfg, fanned out to LOG_FILE when
// set. The returned func closes the file.
func NewLogger(cfg config.Config) (*slog.Logger, func(), error) {
	console := logger.New(
		logger.WithDebug(cfg.LogDebug),
		logger.WithPretty(cfg.LogPretty),
		logger.WithJSON(cfg.LogJSON),
	)
	if cfg.LogFile == "" {
		return console, func() {}, nil
	}
	fileLogger, f, err := logger.NewFile(cfg.LogFile, cfg.LogDebug)
	if err != nil {
		return nil, nil, err
	}
	return logger.Multi(console, fileLogger), func() { _ = f.Close() }, nil
}
