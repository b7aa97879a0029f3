package native

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

// TestMemory returns a one page memory backed by a private wazero runtime
// that is closed when the test ends.
func TestMemory(tb testing.TB) *Memory {
	tb.Helper()

	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	tb.Cleanup(func() { r.Close(ctx) })

	m, _, err := Instantiate(ctx, r, "memory", 1)
	if err != nil {
		tb.Fatalf("instantiate test memory: %v", err)
	}
	return m
}
