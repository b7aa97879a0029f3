package native

import "fmt"

// Addr is a byte offset into linear memory, or an index into the code table
// when it names a function.
type Addr uint32

// Null is the distinguished null address. The allocator never returns it.
const Null Addr = 0

// IsNull reports whether a is the null address.
func (a Addr) IsNull() bool {
	return a == Null
}

// Add returns a advanced by off bytes. Negative offsets move backwards.
func (a Addr) Add(off int64) Addr {
	return Addr(int64(a) + off)
}

func (a Addr) String() string {
	return fmt.Sprintf("0x%08x", uint32(a))
}

// Footprint is the size and alignment a region of memory must satisfy.
type Footprint struct {
	Size  uint32
	Align uint32
}

func (f Footprint) String() string {
	return fmt.Sprintf("size=%d align=%d", f.Size, f.Align)
}

// Aligned reports whether a satisfies the footprint's alignment.
func (f Footprint) Aligned(a Addr) bool {
	if f.Align <= 1 {
		return true
	}
	return uint32(a)%f.Align == 0
}

// AlignUp rounds x up to a multiple of a, which must be a power of two.
func AlignUp(x, a uint32) uint32 {
	if a <= 1 {
		return x
	}
	m := a - 1
	return (x + m) &^ m
}
