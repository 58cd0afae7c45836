package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	gt.NoError(t, err).Required()

	gt.Value(t, cfg.DBDriver).Equal("mysql")
	gt.Value(t, cfg.ChatContextWindowSize).Equal(20)
	gt.Value(t, cfg.SessionTTL).Equal(24 * time.Hour)
	gt.Value(t, cfg.DBOpTimeout).Equal(5 * time.Second)
	gt.Value(t, cfg.RabbitQueue).Equal("chat_jobs")
	gt.Value(t, cfg.AgentMode).Equal("gollem")
	gt.Array(t, cfg.CORSOrigins).Length(6)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_DSN", "agent.db")
	t.Setenv("CHAT_CONTEXT_WINDOW_SIZE", "7")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	gt.NoError(t, err).Required()

	gt.Value(t, cfg.DBDriver).Equal("sqlite")
	gt.Value(t, cfg.DBDSN).Equal("agent.db")
	gt.Value(t, cfg.ChatContextWindowSize).Equal(7)
	gt.Value(t, cfg.SessionTTL).Equal(2 * time.Hour)
	gt.Value(t, cfg.CORSOrigins).Equal([]string{"http://a.example", "http://b.example"})
}

func TestLoad_InvalidWindowFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_CONTEXT_WINDOW_SIZE", "-3")

	cfg, err := Load()
	gt.NoError(t, err).Required()
	gt.Value(t, cfg.ChatContextWindowSize).Equal(20)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	body := "rabbit_queue = \"from_file\"\nupload_dir = \"/srv/uploads\"\n"
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o644)).Required()

	cfg, err := Load()
	gt.NoError(t, err).Required()
	gt.Value(t, cfg.RabbitQueue).Equal("from_file")
	gt.Value(t, cfg.UploadDir).Equal("/srv/uploads")
}
