package foreign

import (
	"context"
	"testing"

	"github.com/caffeineduck/memview/hostfunc"
)

// TestRuntime returns a Runtime with the libc and arith libraries open. It
// is closed when the test ends.
func TestRuntime(tb testing.TB, opts ...Option) *Runtime {
	tb.Helper()

	ctx := context.Background()
	r, err := New(ctx, opts...)
	if err != nil {
		tb.Fatalf("create runtime: %v", err)
	}
	tb.Cleanup(func() { r.Close(ctx) })

	for _, lib := range []*hostfunc.Library{hostfunc.Libc(), hostfunc.Arith()} {
		if err := r.Open(ctx, lib); err != nil {
			tb.Fatalf("open %s: %v", lib.Name(), err)
		}
	}
	return r
}
