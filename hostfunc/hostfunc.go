package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

var ErrNullFunction = errors.New("call through null function pointer")

// Env is the process a native function runs in.
type Env interface {
	Memory() *native.Memory
	// AddressOf returns the code address of a symbol of the calling library.
	AddressOf(symbol string) (native.Addr, error)
	// Invoke calls the function at a code address.
	Invoke(ctx context.Context, code native.Addr, args ...uint64) ([]uint64, error)
}

// Fn implements a native function. Parameters are read from stack and
// results are written back to its front, as in api.GoFunction.
type Fn func(ctx context.Context, env Env, stack []uint64) error

// Native is a function with its wasm signature.
type Native struct {
	Params  []api.ValueType
	Results []api.ValueType
	Fn      Fn
}

// Library is a named set of native functions, loaded as one host module.
type Library struct {
	name  string
	mu    sync.RWMutex
	funcs map[string]Native
}

func NewLibrary(name string) *Library {
	return &Library{name: name, funcs: make(map[string]Native)}
}

func (l *Library) Name() string {
	return l.name
}

func (l *Library) Register(symbol string, n Native) {
	l.mu.Lock()
	l.funcs[symbol] = n
	l.mu.Unlock()
}

func (l *Library) Get(symbol string) (Native, bool) {
	l.mu.RLock()
	n, ok := l.funcs[symbol]
	l.mu.RUnlock()
	return n, ok
}

// List returns the exported symbols in sorted order.
func (l *Library) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for name := range l.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs symbol directly against env, bypassing any runtime. It is meant
// for tests of native code.
func (l *Library) Call(ctx context.Context, env Env, symbol string, args ...uint64) ([]uint64, error) {
	n, ok := l.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%s: unknown symbol %q", l.name, symbol)
	}
	if len(args) != len(n.Params) {
		return nil, fmt.Errorf("%s.%s: want %d arguments, got %d", l.name, symbol, len(n.Params), len(args))
	}
	stack := make([]uint64, max(len(n.Params), len(n.Results)))
	copy(stack, args)
	if err := n.Fn(ctx, env, stack); err != nil {
		return nil, err
	}
	return stack[:len(n.Results)], nil
}

var (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)

func sig(params ...api.ValueType) []api.ValueType { return params }

func addr(x uint64) native.Addr { return native.Addr(api.DecodeU32(x)) }
