// Package config provides unified configuration loading for textbook-tts.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the textbook-tts services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Queue         QueueConfig         `yaml:"queue"`
	Storage       StorageConfig       `yaml:"storage"`
	Worker        WorkerConfig        `yaml:"worker"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Convert       ConvertConfig       `yaml:"convert"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings for the submission API.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// QueueConfig holds Redis job queue settings.
type QueueConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	ParseQueue   string `yaml:"parse_queue"`
	ConvertQueue string `yaml:"convert_queue"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Driver       string        `yaml:"driver"` // gcs or fs
	Bucket       string        `yaml:"bucket"`
	LocalRoot    string        `yaml:"local_root"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

// WorkerConfig holds worker process settings.
type WorkerConfig struct {
	Role          string        `yaml:"role"` // parser, converter, or none
	Name          string        `yaml:"name"`
	WorkDir       string        `yaml:"work_dir"`
	SoftTimeLimit time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit time.Duration `yaml:"hard_time_limit"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// RecognitionConfig holds layout recognition service settings.
type RecognitionConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
}

// SynthesisConfig holds speech synthesis service settings.
type SynthesisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Voice   string        `yaml:"voice"`
	Pace    float64       `yaml:"pace"`
}

// ConvertConfig holds audio conversion settings.
type ConvertConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path"`
	MaxArtifactMB  int    `yaml:"max_artifact_mb"`
	MP3Quality     int    `yaml:"mp3_quality"`
	OutputMIMEType string `yaml:"output_mime_type"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/textbook-tts.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Queue: QueueConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			ParseQueue:   "parse_queue",
			ConvertQueue: "convert_queue",
		},
		Storage: StorageConfig{
			Driver:       "fs",
			LocalRoot:    "/tmp/textbook-tts-files",
			SignedURLTTL: time.Hour,
		},
		Worker: WorkerConfig{
			Role:          "none",
			Name:          hostname,
			WorkDir:       os.TempDir(),
			SoftTimeLimit: 600 * time.Second,
			HardTimeLimit: 900 * time.Second,
			PollInterval:  5 * time.Second,
		},
		Recognition: RecognitionConfig{
			BaseURL:   "http://localhost:9090",
			Timeout:   120 * time.Second,
			BatchSize: 1,
		},
		Synthesis: SynthesisConfig{
			BaseURL: "http://localhost:9091",
			Timeout: 120 * time.Second,
			Voice:   "M2",
			Pace:    1.05,
		},
		Convert: ConvertConfig{
			FFmpegPath:     "ffmpeg",
			MaxArtifactMB:  50,
			MP3Quality:     4,
			OutputMIMEType: "audio/mpeg",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "textbook-tts",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Storage.Driver != "gcs" && c.Storage.Driver != "fs" {
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	switch c.Worker.Role {
	case "parser", "converter", "none":
	default:
		return fmt.Errorf("invalid worker role: %s", c.Worker.Role)
	}

	if c.Worker.SoftTimeLimit >= c.Worker.HardTimeLimit {
		return fmt.Errorf("soft time limit must be below hard time limit")
	}

	if c.Convert.MaxArtifactMB < 1 {
		return fmt.Errorf("max_artifact_mb must be positive")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		cfg.Storage.Driver = "gcs"
		cfg.Storage.Bucket = v
	}

	if v := os.Getenv("WORKER_TYPE"); v != "" {
		cfg.Worker.Role = v
	}

	if v := os.Getenv("WORKER_NAME"); v != "" {
		cfg.Worker.Name = v
	}

	if v := os.Getenv("RECOGNITION_URL"); v != "" {
		cfg.Recognition.BaseURL = v
	}

	if v := os.Getenv("SYNTHESIS_URL"); v != "" {
		cfg.Synthesis.BaseURL = v
	}

	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.Convert.FFmpegPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
