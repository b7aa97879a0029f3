package foreign_test

import (
	"context"
	"errors"
	"testing"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/foreign"
	"github.com/caffeineduck/memview/native"
	"github.com/stretchr/testify/require"
)

func TestHostFuncPromotion(t *testing.T) {
	rt := foreign.TestRuntime(t)
	ctx := context.Background()
	op := rt.NullableFunc(binop)
	apply := resolve(t, rt, "arith", "apply", foreign.Sig(ctype.Int32, op, ctype.Int32, ctype.Int32))

	calls := 0
	sub, err := rt.HostFunc("sub", binop, func(_ context.Context, args []any) (any, error) {
		calls++
		return args[0].(int32) - args[1].(int32), nil
	})
	require.NoError(t, err)

	// Called directly, a host function needs no address.
	require.Equal(t, int32(1), call(t, sub, int32(3), int32(2)))
	require.True(t, sub.Addr().IsNull())
	require.Zero(t, rt.Trampolines())

	require.Equal(t, int32(5), call(t, apply, ctype.Present(sub), int32(8), int32(3)))
	require.False(t, sub.Addr().IsNull())
	require.Equal(t, 1, rt.Trampolines())
	require.Equal(t, 2, calls)

	// Passing it again reuses the trampoline.
	addr := sub.Addr()
	require.Equal(t, int32(-1), call(t, apply, ctype.Present(sub), int32(1), int32(2)))
	require.Equal(t, addr, sub.Addr())
	require.Equal(t, 1, rt.Trampolines())

	// The address reads back as a callable bound to the trampoline.
	m := rt.Memory()
	slot, err := m.Alloc(4, 4)
	require.NoError(t, err)
	require.NoError(t, op.Store(m, slot, ctype.Present(sub)))
	back, err := op.Load(m, slot)
	require.NoError(t, err)
	require.Equal(t, addr, back.Must().Addr())
	require.Same(t, sub.Trampoline(), back.Must().Trampoline())
	require.Equal(t, "sub", back.Must().Name())
	require.Equal(t, int32(10), call(t, back.Must(), int32(12), int32(2)))

	// Releasing a bound copy does not release the owner's trampoline.
	require.NoError(t, back.Must().Release(ctx))
	require.Equal(t, 1, rt.Trampolines())

	require.NoError(t, sub.Release(ctx))
	require.Zero(t, rt.Trampolines())
	require.True(t, sub.Trampoline().Released())
}

func TestReleasedTrampoline(t *testing.T) {
	rt := foreign.TestRuntime(t)
	ctx := context.Background()
	m := rt.Memory()
	op := rt.NullableFunc(binop)
	apply := resolve(t, rt, "arith", "apply", foreign.Sig(ctype.Int32, op, ctype.Int32, ctype.Int32))

	larger, err := rt.HostFunc("max", binop, func(_ context.Context, args []any) (any, error) {
		return max(args[0].(int32), args[1].(int32)), nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(7), call(t, apply, ctype.Present(larger), int32(7), int32(3)))

	slot, err := m.Alloc(4, 4)
	require.NoError(t, err)
	require.NoError(t, op.Store(m, slot, ctype.Present(larger)))
	stale := larger.Addr()

	require.NoError(t, larger.Release(ctx))
	require.NoError(t, larger.Release(ctx))

	// Writing it again fails and leaves memory untouched.
	require.NoError(t, m.WriteUint32(slot, 0))
	err = op.Store(m, slot, ctype.Present(larger))
	require.ErrorIs(t, err, foreign.ErrTrampolineReleased)
	raw, err := m.ReadUint32(slot)
	require.NoError(t, err)
	require.Zero(t, raw)

	_, err = apply.Call(ctx, ctype.Present(larger), int32(1), int32(2))
	require.ErrorIs(t, err, foreign.ErrTrampolineReleased)

	// Only the address is gone; the Go function is still callable.
	require.True(t, larger.Addr().IsNull())
	require.Equal(t, int32(2), call(t, larger, int32(1), int32(2)))

	// The stale address is never handed out again.
	_, err = rt.Bind(stale, binop)
	require.ErrorIs(t, err, native.ErrUnknownCode)

	_, err = apply.CallRaw(ctx, uint64(stale), 1, 2)
	require.Error(t, err)

	require.NoError(t, m.WriteUint32(slot, uint32(stale)))
	_, err = op.Load(m, slot)
	require.ErrorIs(t, err, native.ErrUnknownCode)

	other, err := rt.RegisterTrampoline(ctx, "other", binop, func(_ context.Context, args []any) (any, error) {
		return int32(0), nil
	})
	require.NoError(t, err)
	defer other.Release(ctx)
	require.NotEqual(t, stale, other.Addr())
}

func TestTrampolineRefcount(t *testing.T) {
	rt := foreign.TestRuntime(t)
	ctx := context.Background()

	neg, err := rt.RegisterTrampoline(ctx, "neg", foreign.Sig(ctype.Int32, ctype.Int32), func(_ context.Context, args []any) (any, error) {
		return -args[0].(int32), nil
	})
	require.NoError(t, err)
	require.Equal(t, "neg", neg.Name())
	require.Same(t, neg, neg.Func().Trampoline())
	require.Equal(t, int32(-4), call(t, neg.Func(), int32(4)))

	require.NoError(t, neg.Retain())
	require.NoError(t, neg.Release(ctx))
	require.False(t, neg.Released())
	require.Equal(t, int32(4), call(t, neg.Func(), int32(-4)))

	require.NoError(t, rt.ReleaseTrampoline(ctx, neg.Addr()))
	require.True(t, neg.Released())
	require.ErrorIs(t, neg.Retain(), foreign.ErrTrampolineReleased)
	require.ErrorIs(t, rt.ReleaseTrampoline(ctx, neg.Addr()), native.ErrUnknownCode)

	_, err = neg.Func().Call(ctx, int32(1))
	require.ErrorIs(t, err, native.ErrUnknownCode)
}

func TestTrampolineErrors(t *testing.T) {
	rt := foreign.TestRuntime(t)
	ctx := context.Background()
	op := rt.NullableFunc(binop)
	apply := resolve(t, rt, "arith", "apply", foreign.Sig(ctype.Int32, op, ctype.Int32, ctype.Int32))

	errDiv := errors.New("division by zero")
	div, err := rt.HostFunc("div", binop, func(_ context.Context, args []any) (any, error) {
		b := args[1].(int32)
		if b == 0 {
			return nil, errDiv
		}
		return args[0].(int32) / b, nil
	})
	require.NoError(t, err)
	defer div.Release(ctx)

	require.Equal(t, int32(4), call(t, apply, ctype.Present(div), int32(8), int32(2)))

	_, err = apply.Call(ctx, ctype.Present(div), int32(8), int32(0))
	require.Error(t, err)
	require.Contains(t, err.Error(), errDiv.Error())

	bad, err := rt.HostFunc("bad", binop, func(context.Context, []any) (any, error) {
		return "not an int", nil
	})
	require.NoError(t, err)
	defer bad.Release(ctx)

	_, err = bad.Call(ctx, int32(1), int32(2))
	require.ErrorIs(t, err, ctype.ErrValueType)

	s := ctype.NewStruct("s")
	ctype.AddField(s, "x", ctype.Int32)
	_, err = rt.RegisterTrampoline(ctx, "s", foreign.Void(s.Seal()), func(context.Context, []any) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ctype.ErrNotScalar)
}

func TestTrampolineThroughViews(t *testing.T) {
	rt := foreign.TestRuntime(t)
	ctx := context.Background()

	// A char view over int: the callback sees and returns runes.
	chr := ctype.View(ctype.Int32, func(i int32) rune { return rune(i) }, func(r rune) int32 { return int32(r) }, ctype.Named("chr"))
	upper := foreign.Sig(chr, chr, ctype.Int32)

	shift, err := rt.RegisterTrampoline(ctx, "shift", upper, func(_ context.Context, args []any) (any, error) {
		return args[0].(rune) + rune(args[1].(int32)), nil
	})
	require.NoError(t, err)
	defer shift.Release(ctx)

	require.Equal(t, 'b', call(t, shift.Func(), 'a', int32(1)))

	raw, err := shift.Func().CallRaw(ctx, uint64('A'), 25)
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64('Z')}, raw)
}
