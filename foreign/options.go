package foreign

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Runtime at creation time.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	diskCache        bool
	cacheDir         string
	initialPages     uint32
	memoryLimitPages uint32 // 0 = wazero default (65536 pages = 4GB)
	logger           *slog.Logger
	tracerProvider   trace.TracerProvider
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		initialPages: 1,
	}
}

// WithDiskCache enables a persistent compilation cache. Optionally provide a
// custom directory; otherwise uses ~/.cache/memview or
// XDG_CACHE_HOME/memview.
//
// Examples:
//
//	foreign.New(ctx, foreign.WithDiskCache())             // default dir
//	foreign.New(ctx, foreign.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *runtimeConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithInitialPages sets the initial size of linear memory. Each page is
// 64KB.
func WithInitialPages(pages uint32) Option {
	return func(c *runtimeConfig) {
		if pages > 0 {
			c.initialPages = pages
		}
	}
}

// WithMemoryLimit caps the pages linear memory may grow to. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// WithLogger sets the logger for library, trampoline and allocator events.
func WithLogger(l *slog.Logger) Option {
	return func(c *runtimeConfig) {
		c.logger = l
	}
}

// WithTracerProvider sets the provider of the tracer that records foreign
// calls. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *runtimeConfig) {
		c.tracerProvider = tp
	}
}
