package hostfunc

import (
	"context"
	"fmt"
	"testing"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/native"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

// testEnv runs a single library against a test memory. Code addresses are
// 1 + the index of the symbol in lib.List().
type testEnv struct {
	mem *native.Memory
	lib *Library
}

func newTestEnv(t *testing.T, lib *Library) *testEnv {
	return &testEnv{mem: native.TestMemory(t), lib: lib}
}

func (e *testEnv) Memory() *native.Memory { return e.mem }

func (e *testEnv) AddressOf(symbol string) (native.Addr, error) {
	for i, name := range e.lib.List() {
		if name == symbol {
			return native.Addr(i + 1), nil
		}
	}
	return native.Null, fmt.Errorf("no symbol %q", symbol)
}

func (e *testEnv) Invoke(ctx context.Context, code native.Addr, args ...uint64) ([]uint64, error) {
	names := e.lib.List()
	if code.IsNull() || int(code) > len(names) {
		return nil, native.ErrUnknownCode
	}
	return e.lib.Call(ctx, e, names[code-1], args...)
}

func (e *testEnv) call(t *testing.T, symbol string, args ...uint64) []uint64 {
	t.Helper()
	res, err := e.lib.Call(context.Background(), e, symbol, args...)
	require.NoError(t, err)
	return res
}

func (e *testEnv) cstring(t *testing.T, s string) uint64 {
	t.Helper()
	a, err := e.mem.CString(s)
	require.NoError(t, err)
	return uint64(a)
}

func TestLibraryRegistry(t *testing.T) {
	lib := NewLibrary("test")
	require.Equal(t, "test", lib.Name())
	require.Empty(t, lib.List())

	lib.Register("b", Native{})
	lib.Register("a", Native{Params: sig(i32)})
	require.Equal(t, []string{"a", "b"}, lib.List())

	n, ok := lib.Get("a")
	require.True(t, ok)
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, n.Params)

	_, ok = lib.Get("missing")
	require.False(t, ok)
}

func TestLibraryCallArity(t *testing.T) {
	env := newTestEnv(t, Arith())
	_, err := env.lib.Call(context.Background(), env, "add", 1)
	require.Error(t, err)
	_, err = env.lib.Call(context.Background(), env, "nope")
	require.Error(t, err)
}

func TestLibcStrings(t *testing.T) {
	env := newTestEnv(t, Libc())

	hello := env.cstring(t, "hello")
	require.Equal(t, []uint64{5}, env.call(t, "strlen", hello))

	buf, err := env.mem.Alloc(32, 1)
	require.NoError(t, err)
	dst := uint64(buf)

	require.Equal(t, []uint64{dst}, env.call(t, "strcpy", dst, hello))
	require.Equal(t, []uint64{dst}, env.call(t, "strcat", dst, env.cstring(t, ", world")))
	s, err := env.mem.ReadCString(buf)
	require.NoError(t, err)
	require.Equal(t, "hello, world", s)

	cmp := func(a, b string) int32 {
		return api.DecodeI32(env.call(t, "strcmp", env.cstring(t, a), env.cstring(t, b))[0])
	}
	require.Equal(t, int32(0), cmp("x", "x"))
	require.Equal(t, int32(-1), cmp("a", "b"))
	require.Equal(t, int32(1), cmp("b", "a"))
}

func TestLibcMemory(t *testing.T) {
	env := newTestEnv(t, Libc())

	buf, err := env.mem.Alloc(8, 1)
	require.NoError(t, err)
	env.call(t, "memset", uint64(buf), 0xab, 4)
	b, err := env.mem.Read(buf, 8)
	require.NoError(t, err)
	require.Equal(t, []byte{0xab, 0xab, 0xab, 0xab, 0, 0, 0, 0}, b)

	env.call(t, "memcpy", uint64(buf.Add(4)), uint64(buf), 2)
	b, _ = env.mem.Read(buf, 8)
	require.Equal(t, []byte{0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0, 0}, b)

	_, err = env.lib.Call(context.Background(), env, "strlen", 0)
	require.ErrorIs(t, err, native.ErrNullAddress)
}

func TestArithFunctionPointers(t *testing.T) {
	env := newTestEnv(t, Arith())

	add, err := env.AddressOf("add")
	require.NoError(t, err)
	mul, err := env.AddressOf("multiply")
	require.NoError(t, err)

	require.Equal(t, []uint64{uint64(add)}, env.call(t, "select_op", 0))
	require.Equal(t, []uint64{uint64(mul)}, env.call(t, "select_op", 1))
	require.Equal(t, []uint64{0}, env.call(t, "select_op", 2))

	require.Equal(t, []uint64{9}, env.call(t, "apply", uint64(add), 5, 4))
	require.Equal(t, []uint64{20}, env.call(t, "apply", uint64(mul), 5, 4))

	_, err = env.lib.Call(context.Background(), env, "apply", 0, 5, 4)
	require.ErrorIs(t, err, ErrNullFunction)

	require.Equal(t, []uint64{1}, env.call(t, "is_null", 0))
	require.Equal(t, []uint64{0}, env.call(t, "is_null", uint64(add)))

	neg := env.call(t, "add", api.EncodeI32(-7), 2)
	require.Equal(t, int32(-5), api.DecodeI32(neg[0]))
}

func TestArithComplex(t *testing.T) {
	env := newTestEnv(t, Arith())

	slots := make([]native.Addr, 3)
	for i := range slots {
		a, err := env.mem.Alloc(16, 8)
		require.NoError(t, err)
		slots[i] = a
	}
	require.NoError(t, ctype.Complex128.Store(env.mem, slots[1], complex(1, 2)))
	require.NoError(t, ctype.Complex128.Store(env.mem, slots[2], complex(3, 4)))

	res := env.call(t, "cmul", uint64(slots[0]), uint64(slots[1]), uint64(slots[2]))
	require.Empty(t, res)

	got, err := ctype.Complex128.Load(env.mem, slots[0])
	require.NoError(t, err)
	require.Equal(t, complex(-5, 10), got)

	scaled := env.call(t, "cscale", api.EncodeF64(1.5), api.EncodeF64(-2), api.EncodeF64(2))
	require.Equal(t, 3.0, api.DecodeF64(scaled[0]))
	require.Equal(t, -4.0, api.DecodeF64(scaled[1]))
}
