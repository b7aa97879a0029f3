package foreign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/caffeineduck/memview/hostfunc"
	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

var (
	ErrClosed        = errors.New("runtime closed")
	ErrLibraryOpen   = errors.New("library already open")
	ErrNoLibrary     = errors.New("library not open")
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNullFunction  = hostfunc.ErrNullFunction
)

const tracerName = "github.com/caffeineduck/memview/foreign"

// Runtime owns a wazero runtime, the linear memory foreign code works on,
// the libraries loaded into it and the trampolines registered with it.
//
// Foreign calls into one Runtime must not run concurrently; a native
// function may call back into the runtime from the goroutine it runs on.
type Runtime struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	mem     *native.Memory
	log     *slog.Logger
	tracer  trace.Tracer

	mu     sync.RWMutex
	libs   map[string]*library
	tramps map[native.Addr]*Trampoline
	closed bool
}

// New creates a Runtime with an empty memory and no libraries.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = slog.Default()
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	mem, _, err := native.Instantiate(ctx, rt, "env", cfg.initialPages, native.WithLogger(log))
	if err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, err
	}

	return &Runtime{
		runtime: rt,
		cache:   cache,
		mem:     mem,
		log:     log,
		tracer:  tp.Tracer(tracerName),
		libs:    make(map[string]*library),
		tramps:  make(map[native.Addr]*Trampoline),
	}, nil
}

// Memory returns the linear memory shared by all libraries of r.
func (r *Runtime) Memory() *native.Memory {
	return r.mem
}

// Libraries lists the names of the open libraries.
func (r *Runtime) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.libs))
	for name := range r.libs {
		names = append(names, name)
	}
	return names
}

// invoke calls the function at code with raw stack values.
func (r *Runtime) invoke(ctx context.Context, code native.Addr, args ...uint64) ([]uint64, error) {
	fn, err := r.mem.Table().Lookup(code)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, args...)
}

func (r *Runtime) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Close releases every trampoline and library, then the wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	tramps := r.tramps
	r.tramps = make(map[native.Addr]*Trampoline)
	r.mu.Unlock()

	var err error
	for _, t := range tramps {
		err = multierr.Append(err, t.destroy(ctx))
	}
	err = multierr.Append(err, r.runtime.Close(ctx))
	if r.cache != nil {
		err = multierr.Append(err, r.cache.Close(ctx))
	}
	return err
}

// instantiateHost instantiates a host module named name and a shim module
// forwarding to its funcs. Callers look functions up on the shim; closing
// the shim does not close the host module.
func (r *Runtime) instantiateHost(ctx context.Context, name string, funcs []native.ShimFunc, build func(wazero.HostModuleBuilder) wazero.HostModuleBuilder) (host, shim api.Module, err error) {
	host, err = build(r.runtime.NewHostModuleBuilder(name)).Instantiate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	shim, err = native.InstantiateShim(ctx, r.runtime, name+"#shim", name, funcs)
	if err != nil {
		return nil, nil, multierr.Append(err, host.Close(ctx))
	}
	return host, shim, nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "memview")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "memview")
	}
	return filepath.Join(os.TempDir(), "memview-cache")
}
