// Package native exposes WebAssembly linear memory as raw native memory:
// bounds and alignment checked reads and writes, a heap allocator and the
// function table that gives function pointers their addresses.
package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

var (
	ErrNullAddress  = errors.New("null address")
	ErrMisaligned   = errors.New("misaligned address")
	ErrOutOfBounds  = errors.New("address out of bounds")
	ErrOutOfMemory  = errors.New("out of memory")
	ErrNotAllocated = errors.New("address not allocated")
	ErrBadAlignment = errors.New("alignment must be a power of two")
)

// heapBase keeps the first bytes of memory unallocated so that Null never
// aliases a live object.
const heapBase = 16

// Memory is a view of one wasm linear memory.
//
// Reads and writes are not synchronized; callers sharing an address across
// goroutines must add their own locking. The allocator and the table are safe
// for concurrent use.
type Memory struct {
	mem   api.Memory
	table *Table
	log   *slog.Logger

	mu   sync.Mutex
	free []block
	used map[Addr]uint32
}

// Option configures a Memory.
type Option func(*Memory)

// WithLogger sets the logger used for allocator diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.log = l
		}
	}
}

// New wraps mem. Everything above the reserved null region is handed to the
// allocator.
func New(mem api.Memory, opts ...Option) *Memory {
	m := &Memory{
		mem:   mem,
		table: newTable(),
		log:   slog.Default(),
		used:  make(map[Addr]uint32),
	}
	for _, opt := range opts {
		opt(m)
	}
	if size := mem.Size(); size > heapBase {
		m.free = []block{{addr: heapBase, size: size - heapBase}}
	}
	return m
}

// Raw returns the underlying wazero memory.
func (m *Memory) Raw() api.Memory {
	return m.mem
}

// Size returns the current size of the memory in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Table returns the function table of this address space.
func (m *Memory) Table() *Table {
	return m.table
}

// Check verifies that a region with footprint f can live at addr.
func (m *Memory) Check(addr Addr, f Footprint) error {
	if addr.IsNull() {
		return ErrNullAddress
	}
	if !f.Aligned(addr) {
		return fmt.Errorf("%w: %s for align %d", ErrMisaligned, addr, f.Align)
	}
	return m.inBounds(addr, f.Size)
}

func (m *Memory) inBounds(addr Addr, n uint32) error {
	end := uint64(addr) + uint64(n)
	if end > uint64(m.mem.Size()) {
		return fmt.Errorf("%w: %s+%d (memory size %d)", ErrOutOfBounds, addr, n, m.mem.Size())
	}
	return nil
}

func (m *Memory) oob(addr Addr, n uint32) error {
	return fmt.Errorf("%w: %s+%d (memory size %d)", ErrOutOfBounds, addr, n, m.mem.Size())
}

func (m *Memory) ReadUint8(addr Addr) (uint8, error) {
	v, ok := m.mem.ReadByte(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 1)
	}
	return v, nil
}

func (m *Memory) ReadUint16(addr Addr) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 2)
	}
	return v, nil
}

func (m *Memory) ReadUint32(addr Addr) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 4)
	}
	return v, nil
}

func (m *Memory) ReadUint64(addr Addr) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 8)
	}
	return v, nil
}

func (m *Memory) ReadFloat32(addr Addr) (float32, error) {
	v, ok := m.mem.ReadFloat32Le(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 4)
	}
	return v, nil
}

func (m *Memory) ReadFloat64(addr Addr) (float64, error) {
	v, ok := m.mem.ReadFloat64Le(uint32(addr))
	if !ok {
		return 0, m.oob(addr, 8)
	}
	return v, nil
}

func (m *Memory) WriteUint8(addr Addr, v uint8) error {
	if !m.mem.WriteByte(uint32(addr), v) {
		return m.oob(addr, 1)
	}
	return nil
}

func (m *Memory) WriteUint16(addr Addr, v uint16) error {
	if !m.mem.WriteUint16Le(uint32(addr), v) {
		return m.oob(addr, 2)
	}
	return nil
}

func (m *Memory) WriteUint32(addr Addr, v uint32) error {
	if !m.mem.WriteUint32Le(uint32(addr), v) {
		return m.oob(addr, 4)
	}
	return nil
}

func (m *Memory) WriteUint64(addr Addr, v uint64) error {
	if !m.mem.WriteUint64Le(uint32(addr), v) {
		return m.oob(addr, 8)
	}
	return nil
}

func (m *Memory) WriteFloat32(addr Addr, v float32) error {
	if !m.mem.WriteFloat32Le(uint32(addr), v) {
		return m.oob(addr, 4)
	}
	return nil
}

func (m *Memory) WriteFloat64(addr Addr, v float64) error {
	if !m.mem.WriteFloat64Le(uint32(addr), v) {
		return m.oob(addr, 8)
	}
	return nil
}

// Read returns a copy of n bytes starting at addr.
func (m *Memory) Read(addr Addr, n uint32) ([]byte, error) {
	b, ok := m.mem.Read(uint32(addr), n)
	if !ok {
		return nil, m.oob(addr, n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Write copies b into memory at addr.
func (m *Memory) Write(addr Addr, b []byte) error {
	if !m.mem.Write(uint32(addr), b) {
		return m.oob(addr, uint32(len(b)))
	}
	return nil
}

// Zero clears n bytes at addr.
func (m *Memory) Zero(addr Addr, n uint32) error {
	if err := m.inBounds(addr, n); err != nil {
		return err
	}
	return m.Write(addr, make([]byte, n))
}

// Move copies n bytes from src to dst. The regions may overlap.
func (m *Memory) Move(dst, src Addr, n uint32) error {
	b, err := m.Read(src, n)
	if err != nil {
		return err
	}
	return m.Write(dst, b)
}

// ReadCString reads the NUL terminated string starting at addr.
func (m *Memory) ReadCString(addr Addr) (string, error) {
	if addr.IsNull() {
		return "", ErrNullAddress
	}
	size := m.mem.Size()
	if uint32(addr) >= size {
		return "", m.oob(addr, 1)
	}
	b, _ := m.mem.Read(uint32(addr), size-uint32(addr))
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at %s", ErrOutOfBounds, addr)
}

// WriteCString writes s followed by a NUL byte at addr.
func (m *Memory) WriteCString(addr Addr, s string) error {
	if err := m.inBounds(addr, uint32(len(s))+1); err != nil {
		return err
	}
	if !m.mem.WriteString(uint32(addr), s) {
		return m.oob(addr, uint32(len(s)))
	}
	return m.WriteUint8(addr.Add(int64(len(s))), 0)
}

// CString allocates a copy of s as a NUL terminated string. The caller owns
// the allocation.
func (m *Memory) CString(s string) (Addr, error) {
	addr, err := m.Alloc(uint32(len(s))+1, 1)
	if err != nil {
		return Null, err
	}
	if err := m.WriteCString(addr, s); err != nil {
		m.Free(addr)
		return Null, err
	}
	return addr, nil
}
