package ctype

import (
	"fmt"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// pointerFootprint is the layout of data and function pointers on wasm32.
var pointerFootprint = native.Footprint{Size: 4, Align: 4}

// Ptr is a typed pointer into a memory. The zero Ptr is null.
type Ptr[T any] struct {
	mem  *native.Memory
	addr native.Addr
	elem Type[T]
}

// PtrAt returns a pointer to a T at addr. It does not check the address.
func PtrAt[T any](m *native.Memory, addr native.Addr, elem Type[T]) Ptr[T] {
	return Ptr[T]{mem: m, addr: addr, elem: elem}
}

func (p Ptr[T]) Addr() native.Addr      { return p.addr }
func (p Ptr[T]) Memory() *native.Memory { return p.mem }
func (p Ptr[T]) Elem() Type[T]          { return p.elem }
func (p Ptr[T]) IsNull() bool           { return p.addr.IsNull() }

// Get dereferences p.
func (p Ptr[T]) Get() (T, error) {
	if p.mem == nil || p.elem == nil {
		var zero T
		return zero, native.ErrNullAddress
	}
	return p.elem.Load(p.mem, p.addr)
}

// Set stores v at p.
func (p Ptr[T]) Set(v T) error {
	if p.mem == nil || p.elem == nil {
		return native.ErrNullAddress
	}
	return p.elem.Store(p.mem, p.addr, v)
}

// Add returns p advanced by n elements.
func (p Ptr[T]) Add(n int) Ptr[T] {
	p.addr = p.addr.Add(int64(n) * int64(p.stride()))
	return p
}

// Index loads the i-th element counting from p.
func (p Ptr[T]) Index(i int) (T, error) {
	return p.Add(i).Get()
}

func (p Ptr[T]) stride() uint32 {
	if p.elem == nil {
		return 1
	}
	return p.elem.Footprint().Size
}

func (p Ptr[T]) String() string {
	if p.elem == nil {
		return fmt.Sprintf("(void*)%s", p.addr)
	}
	return fmt.Sprintf("(%s*)%s", p.elem.Name(), p.addr)
}

// Cast reinterprets the pointee of p as a U. The footprints must match.
func Cast[T, U any](p Ptr[T], u Type[U]) (Ptr[U], error) {
	if p.elem != nil {
		if err := checkFootprint(p.elem, u); err != nil {
			return Ptr[U]{}, err
		}
	}
	return Ptr[U]{mem: p.mem, addr: p.addr, elem: u}, nil
}

type pointerType[T any] struct {
	boxed[Ptr[T]]
	elem Type[T]
}

// Pointer returns the descriptor of a raw pointer to elem.
func Pointer[T any](elem Type[T]) Type[Ptr[T]] {
	p := &pointerType[T]{elem: elem}
	p.boxed = boxed[Ptr[T]]{p}
	return p
}

func (p *pointerType[T]) Name() string                { return p.elem.Name() + "*" }
func (p *pointerType[T]) Footprint() native.Footprint { return pointerFootprint }
func (p *pointerType[T]) Kind() Kind                  { return KindPrimitive }
func (p *pointerType[T]) ValueTypes() []api.ValueType { return []api.ValueType{api.ValueTypeI32} }

// Elem returns the pointee descriptor.
func (p *pointerType[T]) Elem() Descriptor { return p.elem }

func (p *pointerType[T]) Load(m *native.Memory, addr native.Addr) (Ptr[T], error) {
	if err := m.Check(addr, pointerFootprint); err != nil {
		return Ptr[T]{}, err
	}
	v, err := m.ReadUint32(addr)
	if err != nil {
		return Ptr[T]{}, err
	}
	return PtrAt(m, native.Addr(v), p.elem), nil
}

func (p *pointerType[T]) Store(m *native.Memory, addr native.Addr, v Ptr[T]) error {
	if err := sameMemory(m, v.mem); err != nil {
		return err
	}
	if err := m.Check(addr, pointerFootprint); err != nil {
		return err
	}
	return m.WriteUint32(addr, uint32(v.addr))
}

func (p *pointerType[T]) Lift(m *native.Memory, stack []uint64) (Ptr[T], error) {
	if err := needStack(p, stack); err != nil {
		return Ptr[T]{}, err
	}
	return PtrAt(m, native.Addr(api.DecodeU32(stack[0])), p.elem), nil
}

func (p *pointerType[T]) Lower(m *native.Memory, v Ptr[T]) ([]uint64, error) {
	if err := sameMemory(m, v.mem); err != nil {
		return nil, err
	}
	return []uint64{api.EncodeU32(uint32(v.addr))}, nil
}

// sameMemory rejects pointers minted for a different memory. A Ptr with no
// memory is accepted as a bare address.
func sameMemory(m, owner *native.Memory) error {
	if owner != nil && owner != m {
		return ErrWrongMemory
	}
	return nil
}
