// Package config loads memview.toml and MEMVIEW_* environment overrides for
// the memview command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/caffeineduck/memview/foreign"
)

// FileName is the config file looked up in the working directory.
const FileName = "memview.toml"

// Config is the memview command configuration. Environment variables take
// precedence over the file.
type Config struct {
	LogLevel     string        `toml:"log-level" env:"LOG_LEVEL"`
	Memory       string        `toml:"memory" env:"MEMORY"`
	InitialPages uint32        `toml:"initial-pages" env:"INITIAL_PAGES"`
	DiskCache    bool          `toml:"disk-cache" env:"DISK_CACHE"`
	CacheDir     string        `toml:"cache-dir" env:"CACHE_DIR"`
	History      string        `toml:"history" env:"HISTORY"`
	Serve        Serve         `toml:"serve" envPrefix:"SERVE_"`
	Telemetry    Telemetry     `toml:"telemetry" envPrefix:"OTEL_"`
	SessionTTL   time.Duration `toml:"-"`
}

// Serve configures memview serve. Files is the directory sessions may
// snapshot to and restore from; without it they have no file access.
type Serve struct {
	Port       int    `toml:"port" env:"PORT"`
	SessionTTL string `toml:"session-ttl" env:"SESSION_TTL"`
	Files      string `toml:"files" env:"FILES"`
}

// Telemetry configures trace export. Tracing is off without an endpoint.
type Telemetry struct {
	Endpoint string `toml:"endpoint" env:"ENDPOINT"`
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
}

// Default returns the configuration used when no file or variable sets a
// value.
func Default() Config {
	return Config{
		LogLevel:     "warn",
		Memory:       "16mb",
		InitialPages: 1,
		Serve: Serve{
			Port:       8080,
			SessionTTL: "15m",
		},
		Telemetry: Telemetry{Enabled: true},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is the default file name.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return finish(cfg)
		}
		return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return finish(cfg)
}

func finish(cfg Config) (Config, error) {
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	ttl, err := time.ParseDuration(cfg.Serve.SessionTTL)
	if err != nil {
		return Config{}, fmt.Errorf("serve.session-ttl: %w", err)
	}
	cfg.SessionTTL = ttl
	return cfg, nil
}

// ParseEnv applies MEMVIEW_* environment variables to target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: "MEMVIEW_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// RuntimeOptions translates the configuration into foreign.Runtime options.
func (c Config) RuntimeOptions(log *slog.Logger) []foreign.Option {
	opts := []foreign.Option{
		foreign.WithLogger(log),
		foreign.WithInitialPages(c.InitialPages),
	}
	if pages := ParseMemoryLimit(c.Memory); pages > 0 {
		opts = append(opts, foreign.WithMemoryLimit(pages))
	}
	if c.DiskCache {
		opts = append(opts, foreign.WithDiskCache(c.CacheDir))
	}
	return opts
}

// ParseMemoryLimit converts a size such as "16mb" into pages. Unknown sizes
// give 0, which leaves memory unlimited.
func ParseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return foreign.MemoryLimit1MB
	case "16mb":
		return foreign.MemoryLimit16MB
	case "64mb":
		return foreign.MemoryLimit64MB
	case "256mb":
		return foreign.MemoryLimit256MB
	case "1gb":
		return foreign.MemoryLimit1GB
	default:
		return 0
	}
}

// Logger returns a text logger on stderr at the configured level.
func (c Config) Logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
