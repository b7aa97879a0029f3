package native

import (
	"fmt"
	"sort"
)

const pageSize = 65536

type block struct {
	addr Addr
	size uint32
}

// Block describes a live allocation.
type Block struct {
	Addr Addr
	Size uint32
}

// Alloc reserves size bytes aligned to align and zeroes them. Memory grows by
// whole pages when no free block fits.
func (m *Memory) Alloc(size, align uint32) (Addr, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return Null, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if size == 0 {
		size = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr, ok := m.fit(size, align)
	if !ok {
		if err := m.grow(size + align); err != nil {
			return Null, err
		}
		if addr, ok = m.fit(size, align); !ok {
			return Null, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, size)
		}
	}
	m.used[addr] = size

	if err := m.Zero(addr, size); err != nil {
		return Null, err
	}

	m.log.Debug("alloc", "addr", addr, "size", size, "align", align)
	return addr, nil
}

// fit carves a region out of the first free block that can hold it.
func (m *Memory) fit(size, align uint32) (Addr, bool) {
	for i, b := range m.free {
		start := AlignUp(uint32(b.addr), align)
		end := uint64(start) + uint64(size)
		if end > uint64(b.addr)+uint64(b.size) {
			continue
		}

		var rest []block
		if lead := start - uint32(b.addr); lead > 0 {
			rest = append(rest, block{addr: b.addr, size: lead})
		}
		if tail := uint32(uint64(b.addr) + uint64(b.size) - end); tail > 0 {
			rest = append(rest, block{addr: Addr(end), size: tail})
		}
		m.free = append(m.free[:i], append(rest, m.free[i+1:]...)...)
		return Addr(start), true
	}
	return Null, false
}

func (m *Memory) grow(need uint32) error {
	pages := (need + pageSize - 1) / pageSize
	prev, ok := m.mem.Grow(pages)
	if !ok {
		return fmt.Errorf("%w: cannot grow by %d pages", ErrOutOfMemory, pages)
	}
	m.log.Debug("grow", "from_pages", prev, "by_pages", pages)

	start := Addr(prev * pageSize)
	if start < heapBase {
		start = heapBase
	}
	m.release(block{addr: start, size: prev*pageSize + pages*pageSize - uint32(start)})
	return nil
}

// Free returns the allocation at addr to the allocator.
func (m *Memory) Free(addr Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.used[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAllocated, addr)
	}
	delete(m.used, addr)
	m.release(block{addr: addr, size: size})

	m.log.Debug("free", "addr", addr, "size", size)
	return nil
}

// release inserts b into the free list, merging with its neighbours.
func (m *Memory) release(b block) {
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].addr >= b.addr })
	m.free = append(m.free, block{})
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = b

	if i+1 < len(m.free) && uint64(m.free[i].addr)+uint64(m.free[i].size) == uint64(m.free[i+1].addr) {
		m.free[i].size += m.free[i+1].size
		m.free = append(m.free[:i+1], m.free[i+2:]...)
	}
	if i > 0 && uint64(m.free[i-1].addr)+uint64(m.free[i-1].size) == uint64(m.free[i].addr) {
		m.free[i-1].size += m.free[i].size
		m.free = append(m.free[:i], m.free[i+1:]...)
	}
}

// Blocks lists live allocations ordered by address.
func (m *Memory) Blocks() []Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Block, 0, len(m.used))
	for addr, size := range m.used {
		out = append(out, Block{Addr: addr, Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// SizeOf returns the size of the live allocation at addr.
func (m *Memory) SizeOf(addr Addr) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, ok := m.used[addr]
	return size, ok
}
