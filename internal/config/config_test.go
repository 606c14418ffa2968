package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "parse_queue", cfg.Queue.ParseQueue)
	assert.Equal(t, "convert_queue", cfg.Queue.ConvertQueue)
	assert.Equal(t, 600*time.Second, cfg.Worker.SoftTimeLimit)
	assert.Equal(t, 900*time.Second, cfg.Worker.HardTimeLimit)
	assert.Equal(t, 50, cfg.Convert.MaxArtifactMB)
	assert.Equal(t, 4, cfg.Convert.MP3Quality)
	assert.Equal(t, "M2", cfg.Synthesis.Voice)
	assert.InDelta(t, 1.05, cfg.Synthesis.Pace, 0.001)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad database driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"bad storage driver", func(c *Config) { c.Storage.Driver = "s3" }},
		{"bad worker role", func(c *Config) { c.Worker.Role = "gpu" }},
		{"soft limit above hard", func(c *Config) { c.Worker.SoftTimeLimit = c.Worker.HardTimeLimit + time.Second }},
		{"zero artifact ceiling", func(c *Config) { c.Convert.MaxArtifactMB = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9999
worker:
  role: parser
synthesis:
  voice: F1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "parser", cfg.Worker.Role)
	assert.Equal(t, "F1", cfg.Synthesis.Voice)
	// Untouched sections keep their defaults.
	assert.Equal(t, "parse_queue", cfg.Queue.ParseQueue)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_TYPE", "converter")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/override.db")
	t.Setenv("REDIS_URL", "redis://redis.internal:6380")
	t.Setenv("SYNTHESIS_URL", "http://gpu-box:9091")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "converter", cfg.Worker.Role)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/override.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "redis.internal:6380", cfg.Queue.Addr)
	assert.Equal(t, "http://gpu-box:9091", cfg.Synthesis.BaseURL)
}

func TestEnvPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/tts")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://user:pass@db:5432/tts", cfg.Database.Postgres.DSN)
}
