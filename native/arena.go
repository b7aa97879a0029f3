package native

import (
	"sync"

	"go.uber.org/multierr"
)

// Arena groups allocations that are released together, typically the
// temporaries of one foreign call.
type Arena struct {
	mem *Memory

	mu    sync.Mutex
	addrs []Addr
}

// NewArena returns an empty arena allocating from m.
func (m *Memory) NewArena() *Arena {
	return &Arena{mem: m}
}

// Memory returns the memory the arena allocates from.
func (a *Arena) Memory() *Memory {
	return a.mem
}

func (a *Arena) Alloc(size, align uint32) (Addr, error) {
	addr, err := a.mem.Alloc(size, align)
	if err != nil {
		return Null, err
	}
	a.track(addr)
	return addr, nil
}

func (a *Arena) CString(s string) (Addr, error) {
	addr, err := a.mem.CString(s)
	if err != nil {
		return Null, err
	}
	a.track(addr)
	return addr, nil
}

func (a *Arena) track(addr Addr) {
	a.mu.Lock()
	a.addrs = append(a.addrs, addr)
	a.mu.Unlock()
}

// Len returns the number of live allocations held by the arena.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.addrs)
}

// Release frees every allocation made through the arena. The arena can be
// reused afterwards.
func (a *Arena) Release() error {
	a.mu.Lock()
	addrs := a.addrs
	a.addrs = nil
	a.mu.Unlock()

	var err error
	for _, addr := range addrs {
		err = multierr.Append(err, a.mem.Free(addr))
	}
	return err
}
