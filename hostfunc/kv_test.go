package hostfunc

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/caffeineduck/memview/native"
	"github.com/stretchr/testify/require"
)

func TestKVSetGet(t *testing.T) {
	kv := NewKVStore()
	env := newTestEnv(t, kv.Library())

	require.Empty(t, env.call(t, "kv_set", env.cstring(t, "foo"), env.cstring(t, "bar")))
	got, ok := kv.Get("foo")
	require.True(t, ok)
	require.Equal(t, "bar", got)

	p := env.call(t, "kv_get", env.cstring(t, "foo"))[0]
	require.NotZero(t, p)
	s, err := env.mem.ReadCString(native.Addr(p))
	require.NoError(t, err)
	require.Equal(t, "bar", s)

	// The copy belongs to the caller.
	size, ok := env.mem.SizeOf(native.Addr(p))
	require.True(t, ok)
	require.Equal(t, uint32(4), size)
	require.NoError(t, env.mem.Free(native.Addr(p)))
}

func TestKVGetMissing(t *testing.T) {
	env := newTestEnv(t, NewKVStore().Library())
	require.Equal(t, []uint64{0}, env.call(t, "kv_get", env.cstring(t, "missing")))
}

func TestKVOverwrite(t *testing.T) {
	kv := NewKVStore()
	env := newTestEnv(t, kv.Library())

	env.call(t, "kv_set", env.cstring(t, "k"), env.cstring(t, "one"))
	env.call(t, "kv_set", env.cstring(t, "k"), env.cstring(t, "two"))
	got, _ := kv.Get("k")
	require.Equal(t, "two", got)
	require.Equal(t, []uint64{1}, env.call(t, "kv_len"))
}

func TestKVDelete(t *testing.T) {
	kv := NewKVStore()
	env := newTestEnv(t, kv.Library())
	kv.Set("foo", "bar")

	require.Equal(t, []uint64{1}, env.call(t, "kv_delete", env.cstring(t, "foo")))
	require.Equal(t, []uint64{0}, env.call(t, "kv_delete", env.cstring(t, "foo")))
	require.Equal(t, []uint64{0}, env.call(t, "kv_len"))
}

func TestKVBadPointer(t *testing.T) {
	env := newTestEnv(t, NewKVStore().Library())
	_, err := env.lib.Call(context.Background(), env, "kv_get", uint64(env.mem.Size()+8))
	require.ErrorIs(t, err, native.ErrOutOfBounds)
}

func TestKVConcurrency(t *testing.T) {
	kv := NewKVStore()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key%d", n)
			kv.Set(key, "value")
			kv.Get(key)
			if n%2 == 0 {
				kv.Delete(key)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, kv.Len())
}
