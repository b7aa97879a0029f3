package foreign

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/native"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrWrongRuntime = errors.New("function belongs to another runtime")

// Func is a callable: a code address bound to a signature, or a Go function
// that is given a code address the first time one is needed.
type Func struct {
	rt   *Runtime
	sig  Signature
	name string

	mu    sync.Mutex
	code  native.Addr
	tramp *Trampoline
	host  HostFunc
}

// Bind returns a callable for the function at code. The function must exist
// and its wasm signature must match sig.
func (r *Runtime) Bind(code native.Addr, sig Signature) (*Func, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	fn, err := r.mem.Table().Lookup(code)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", code, err)
	}
	if err := sig.check(fn.Definition()); err != nil {
		return nil, err
	}

	f := &Func{rt: r, sig: sig, code: code, name: fn.Definition().DebugName()}
	r.mu.RLock()
	f.tramp = r.tramps[code]
	r.mu.RUnlock()
	if f.tramp != nil {
		f.name = f.tramp.name
	}
	return f, nil
}

// HostFunc wraps fn as a callable of signature sig. It has no code address
// until it is written to memory or passed to a foreign function; then a
// trampoline is registered for it, which [Func.Release] releases.
func (r *Runtime) HostFunc(name string, sig Signature, fn HostFunc) (*Func, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &Func{rt: r, sig: sig, name: name, host: fn}, nil
}

func (f *Func) Name() string         { return f.name }
func (f *Func) Signature() Signature { return f.sig }

// Addr returns the code address of f, or Null for a host function that has
// not been promoted yet.
func (f *Func) Addr() native.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

func (f *Func) String() string {
	return fmt.Sprintf("%s@%s", f.name, f.Addr())
}

// Trampoline returns the trampoline behind f, if any.
func (f *Func) Trampoline() *Trampoline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tramp
}

// address returns the code address to store for f in r's memory, promoting
// a host function to a trampoline if needed.
func (f *Func) address(ctx context.Context, r *Runtime) (native.Addr, error) {
	if f.rt != r {
		return native.Null, ErrWrongRuntime
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tramp != nil {
		if f.tramp.Released() {
			return native.Null, fmt.Errorf("%w: %s", ErrTrampolineReleased, f.tramp.Name())
		}
		return f.code, nil
	}
	if f.host == nil {
		return f.code, nil
	}

	t, err := r.RegisterTrampoline(ctx, f.name, f.sig, f.host)
	if err != nil {
		return native.Null, err
	}
	f.tramp = t
	f.code = t.Addr()
	return f.code, nil
}

// Release releases the trampoline f was promoted to. It is a no-op for
// foreign functions and for host functions that were never promoted. The
// address is invalidated but f itself stays callable from Go.
func (f *Func) Release(ctx context.Context) error {
	f.mu.Lock()
	t := f.tramp
	owned := f.host != nil
	f.mu.Unlock()

	if t == nil || !owned {
		return nil
	}
	err := t.Release(ctx)
	if t.Released() {
		f.mu.Lock()
		f.code = native.Null
		f.mu.Unlock()
	}
	return err
}

// Call marshals args through the parameter descriptors, calls f and
// unmarshals its result. It returns nil for void functions.
func (f *Func) Call(ctx context.Context, args ...any) (out any, err error) {
	ctx, span := f.rt.tracer.Start(ctx, "foreign.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("foreign.function", f.name),
			attribute.String("foreign.signature", f.sig.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(args) != len(f.sig.Params) {
		return nil, fmt.Errorf("call %s: want %d arguments, got %d", f.name, len(f.sig.Params), len(args))
	}

	m := f.rt.mem
	var stack []uint64
	for i, p := range f.sig.Params {
		slots, err := p.LowerValue(m, args[i])
		if err != nil {
			return nil, fmt.Errorf("call %s: argument %d: %w", f.name, i, err)
		}
		stack = append(stack, slots...)
	}

	res, err := f.call(ctx, stack)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", f.name, err)
	}
	if f.sig.Result == nil {
		return nil, nil
	}
	v, err := f.sig.Result.LiftValue(m, res)
	if err != nil {
		return nil, fmt.Errorf("call %s: result: %w", f.name, err)
	}
	return v, nil
}

// CallRaw calls f with already flattened stack values.
func (f *Func) CallRaw(ctx context.Context, stack ...uint64) ([]uint64, error) {
	return f.call(ctx, stack)
}

func (f *Func) call(ctx context.Context, stack []uint64) ([]uint64, error) {
	f.mu.Lock()
	code, host, t := f.code, f.host, f.tramp
	f.mu.Unlock()

	// A host function whose trampoline is gone is still a Go function.
	if host != nil && (code.IsNull() || t.Released()) {
		return callHost(ctx, f.rt.mem, f.sig, host, stack)
	}
	return f.rt.invoke(ctx, code, stack...)
}

// Fn1 returns a typed wrapper of a one argument function.
func Fn1[A, R any](f *Func) (func(context.Context, A) (R, error), error) {
	if err := checkTypes[R](f, typeCheck[A](0)); err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A) (R, error) {
		return result[R](f.Call(ctx, a))
	}, nil
}

// Fn2 returns a typed wrapper of a two argument function.
func Fn2[A, B, R any](f *Func) (func(context.Context, A, B) (R, error), error) {
	if err := checkTypes[R](f, typeCheck[A](0), typeCheck[B](1)); err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A, b B) (R, error) {
		return result[R](f.Call(ctx, a, b))
	}, nil
}

func typeCheck[T any](i int) func(Signature) error {
	return func(s Signature) error {
		if _, ok := s.Params[i].(ctype.Type[T]); !ok {
			var zero T
			return fmt.Errorf("%w: parameter %d is %s, not %T", ErrSignatureMismatch, i, s.Params[i].Name(), zero)
		}
		return nil
	}
}

func checkTypes[R any](f *Func, params ...func(Signature) error) error {
	if len(params) != len(f.sig.Params) {
		return fmt.Errorf("%w: %s takes %d parameters", ErrSignatureMismatch, f.name, len(f.sig.Params))
	}
	for _, check := range params {
		if err := check(f.sig); err != nil {
			return err
		}
	}
	if _, ok := f.sig.Result.(ctype.Type[R]); !ok {
		var zero R
		return fmt.Errorf("%w: %s does not return %T", ErrSignatureMismatch, f.name, zero)
	}
	return nil
}

func result[R any](v any, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: result is %T", ctype.ErrValueType, v)
	}
	return r, nil
}
