package foreign

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/memview/native"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
)

var ErrTrampolineReleased = errors.New("trampoline released")

// HostFunc is a Go function callable from foreign code. args hold the
// logical values of the parameters; the result is marshalled through the
// signature's result descriptor and ignored for void signatures.
type HostFunc func(ctx context.Context, args []any) (any, error)

// Trampoline gives a HostFunc a code address. It stays callable until its
// last reference is released; afterwards its address is never reused and
// calls through it fail with native.ErrUnknownCode.
type Trampoline struct {
	rt   *Runtime
	name string
	sig  Signature
	fn   HostFunc
	host api.Module
	shim api.Module
	addr native.Addr
	f    *Func

	mu   sync.Mutex
	refs int
}

// RegisterTrampoline promotes fn to a code address. The caller owns one
// reference and must release it once foreign code can no longer call fn.
func (r *Runtime) RegisterTrampoline(ctx context.Context, name string, sig Signature, fn HostFunc) (*Trampoline, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	t := &Trampoline{rt: r, name: name, sig: sig, fn: fn, refs: 1}
	modName := "trampoline-" + uuid.NewString()

	shimFunc := native.ShimFunc{Name: "fn", Params: sig.ParamTypes(), Results: sig.ResultTypes()}
	host, shim, err := r.instantiateHost(ctx, modName, []native.ShimFunc{shimFunc}, func(b wazero.HostModuleBuilder) wazero.HostModuleBuilder {
		return b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(t.call), sig.ParamTypes(), sig.ResultTypes()).
			WithName(name).
			Export("fn")
	})
	if err != nil {
		return nil, err
	}

	addr, err := r.mem.Table().Insert(shim.ExportedFunction("fn"))
	if err != nil {
		return nil, multierr.Combine(err, shim.Close(ctx), host.Close(ctx))
	}
	t.host, t.shim = host, shim
	t.addr = addr
	t.f = &Func{rt: r, sig: sig, name: name, code: addr, tramp: t}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, multierr.Append(ErrClosed, t.destroy(ctx))
	}
	r.tramps[addr] = t
	r.mu.Unlock()

	r.log.Info("trampoline registered", "name", name, "addr", addr, "module", modName)
	return t, nil
}

// ReleaseTrampoline releases one reference to the trampoline at addr.
func (r *Runtime) ReleaseTrampoline(ctx context.Context, addr native.Addr) error {
	r.mu.RLock()
	t, ok := r.tramps[addr]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no trampoline at %s", native.ErrUnknownCode, addr)
	}
	return t.Release(ctx)
}

// Trampolines returns the number of live trampolines.
func (r *Runtime) Trampolines() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tramps)
}

func (t *Trampoline) Name() string      { return t.name }
func (t *Trampoline) Addr() native.Addr { return t.addr }

// Func returns a callable that calls the trampoline through its address.
func (t *Trampoline) Func() *Func { return t.f }

// Released reports whether the last reference has been released.
func (t *Trampoline) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs == 0
}

// Retain adds a reference, for example when the address is handed to a
// second piece of foreign code.
func (t *Trampoline) Retain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs == 0 {
		return fmt.Errorf("%w: %s", ErrTrampolineReleased, t.name)
	}
	t.refs++
	return nil
}

// Release drops a reference. Dropping the last one removes the address from
// the function table and closes the trampoline's modules. Releasing a released
// trampoline does nothing.
func (t *Trampoline) Release(ctx context.Context) error {
	t.mu.Lock()
	if t.refs == 0 {
		t.mu.Unlock()
		return nil
	}
	t.refs--
	last := t.refs == 0
	t.mu.Unlock()

	if !last {
		return nil
	}

	t.rt.mu.Lock()
	delete(t.rt.tramps, t.addr)
	t.rt.mu.Unlock()

	t.rt.log.Info("trampoline released", "name", t.name, "addr", t.addr)
	return t.destroy(ctx)
}

func (t *Trampoline) destroy(ctx context.Context) error {
	t.mu.Lock()
	t.refs = 0
	t.mu.Unlock()

	var err error
	if rerr := t.rt.mem.Table().Remove(t.addr); rerr != nil && !errors.Is(rerr, native.ErrUnknownCode) {
		err = rerr
	}
	return multierr.Combine(err, t.shim.Close(ctx), t.host.Close(ctx))
}

func (t *Trampoline) call(ctx context.Context, stack []uint64) {
	res, err := callHost(ctx, t.rt.mem, t.sig, t.fn, stack)
	if err != nil {
		panic(err)
	}
	copy(stack, res)
}

// callHost lifts the arguments of fn from stack and lowers its result.
func callHost(ctx context.Context, m *native.Memory, sig Signature, fn HostFunc, stack []uint64) ([]uint64, error) {
	args := make([]any, len(sig.Params))
	off := 0
	for i, p := range sig.Params {
		if off > len(stack) {
			return nil, fmt.Errorf("argument %d: stack exhausted", i)
		}
		v, err := p.LiftValue(m, stack[off:])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
		off += len(p.ValueTypes())
	}

	res, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	if sig.Result == nil {
		return nil, nil
	}
	return sig.Result.LowerValue(m, res)
}
