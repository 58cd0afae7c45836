package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/logger"
)

func TestNew_TextAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf))
	l.Info("hello", "key", "value")
	l.Debug("hidden")

	out := buf.String()
	gt.String(t, out).Contains("hello")
	gt.String(t, out).Contains("key")
	gt.Bool(t, strings.Contains(out, "hidden")).False()
}

func TestNew_Debug(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
	l.Debug("debug msg")
	gt.String(t, buf.String()).Contains("debug msg")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithPretty(true))
	l.Info("structured", "count", 42)

	var parsed map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &parsed)).Required()
	gt.Value(t, parsed["msg"]).Equal("structured")
	gt.Value(t, parsed["count"]).Equal(float64(42))
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
	l.Info("pretty output")
	gt.String(t, buf.String()).Contains("pretty output")
}

func TestMulti(t *testing.T) {
	var b1, b2 bytes.Buffer
	l := logger.Multi(
		logger.New(logger.WithWriter(&b1)),
		logger.New(logger.WithWriter(&b2), logger.WithJSON(true)),
	)
	l.With("component", "test").Info("broadcast")

	gt.String(t, b1.String()).Contains("broadcast")
	var parsed map[string]any
	gt.NoError(t, json.Unmarshal(bytes.TrimSpace(b2.Bytes()), &parsed)).Required()
	gt.Value(t, parsed["component"]).Equal("test")
}

func TestNop(t *testing.T) {
	l := logger.Nop()
	gt.Bool(t, l.Handler().Enabled(context.Background(), slog.LevelError)).False()
	l.With("k", "v").WithGroup("g").Error("nothing")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	l, f, err := logger.NewFile(path, false)
	gt.NoError(t, err).Required()
	l.Info("to file", "conversation_id", 3)
	gt.NoError(t, f.Close())

	b, err := os.ReadFile(path)
	gt.NoError(t, err).Required()
	gt.String(t, string(b)).Contains("to file")
}
