package foreign

import (
	"context"
	"fmt"

	"github.com/caffeineduck/memview/hostfunc"
	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
)

// library is an open hostfunc.Library. It is the Env its functions run in.
type library struct {
	rt    *Runtime
	name  string
	host  api.Module
	shim  api.Module
	addrs map[string]native.Addr
}

func (l *library) Memory() *native.Memory {
	return l.rt.mem
}

func (l *library) AddressOf(symbol string) (native.Addr, error) {
	addr, ok := l.addrs[symbol]
	if !ok {
		return native.Null, fmt.Errorf("%w: %s.%s", ErrUnknownSymbol, l.name, symbol)
	}
	return addr, nil
}

func (l *library) Invoke(ctx context.Context, code native.Addr, args ...uint64) ([]uint64, error) {
	return l.rt.invoke(ctx, code, args...)
}

// Open loads lib as a host module named after it and gives every function a
// code address.
func (r *Runtime) Open(ctx context.Context, lib *hostfunc.Library) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.libs[lib.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrLibraryOpen, lib.Name())
	}

	l := &library{rt: r, name: lib.Name(), addrs: make(map[string]native.Addr)}
	symbols := lib.List()

	funcs := make([]native.ShimFunc, len(symbols))
	for i, symbol := range symbols {
		n, _ := lib.Get(symbol)
		funcs[i] = native.ShimFunc{Name: symbol, Params: n.Params, Results: n.Results}
	}

	host, shim, err := r.instantiateHost(ctx, lib.Name(), funcs, func(b wazero.HostModuleBuilder) wazero.HostModuleBuilder {
		for _, symbol := range symbols {
			n, _ := lib.Get(symbol)
			b = b.NewFunctionBuilder().
				WithGoFunction(nativeFunc(l, n.Fn), n.Params, n.Results).
				WithName(symbol).
				Export(symbol)
		}
		return b
	})
	if err != nil {
		return err
	}
	l.host, l.shim = host, shim

	for _, symbol := range symbols {
		addr, err := r.mem.Table().Insert(shim.ExportedFunction(symbol))
		if err != nil {
			return multierr.Combine(fmt.Errorf("open %s: %w", lib.Name(), err), shim.Close(ctx), host.Close(ctx))
		}
		l.addrs[symbol] = addr
	}
	r.libs[lib.Name()] = l

	r.log.Info("library opened", "library", lib.Name(), "symbols", len(symbols))
	return nil
}

// nativeFunc adapts a native function to wazero. Errors abort the call.
func nativeFunc(env hostfunc.Env, fn hostfunc.Fn) api.GoFunction {
	return api.GoFunc(func(ctx context.Context, stack []uint64) {
		if err := fn(ctx, env, stack); err != nil {
			panic(err)
		}
	})
}

func (r *Runtime) library(name string) (*library, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	l, ok := r.libs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLibrary, name)
	}
	return l, nil
}

// AddressOf returns the code address of symbol in the open library lib.
// The same symbol always has the same address.
func (r *Runtime) AddressOf(lib, symbol string) (native.Addr, error) {
	l, err := r.library(lib)
	if err != nil {
		return native.Null, err
	}
	return l.AddressOf(symbol)
}

// Resolve binds symbol of lib to sig.
func (r *Runtime) Resolve(lib, symbol string, sig Signature) (*Func, error) {
	addr, err := r.AddressOf(lib, symbol)
	if err != nil {
		return nil, err
	}
	return r.Bind(addr, sig)
}
