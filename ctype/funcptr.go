package ctype

import (
	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// Code is a raw function pointer: an index into the function table of the
// memory it was read from.
type Code struct {
	mem  *native.Memory
	addr native.Addr
}

// CodeAt returns the function pointer addr in m.
func CodeAt(m *native.Memory, addr native.Addr) Code {
	return Code{mem: m, addr: addr}
}

func (c Code) Addr() native.Addr      { return c.addr }
func (c Code) Memory() *native.Memory { return c.mem }
func (c Code) IsNull() bool           { return c.addr.IsNull() }
func (c Code) String() string         { return "code@" + c.addr.String() }

// Lookup resolves the function c points to.
func (c Code) Lookup() (api.Function, error) {
	if c.mem == nil {
		return nil, native.ErrNullAddress
	}
	return c.mem.Table().Lookup(c.addr)
}

type funcPtrType struct {
	boxed[Code]
	name string
}

// FuncPtr returns the descriptor of a function pointer. name is only used in
// diagnostics, usually the C signature.
func FuncPtr(name string) Type[Code] {
	f := &funcPtrType{name: name}
	f.boxed = boxed[Code]{f}
	return f
}

func (f *funcPtrType) Name() string                { return f.name }
func (f *funcPtrType) Footprint() native.Footprint { return pointerFootprint }
func (f *funcPtrType) Kind() Kind                  { return KindPrimitive }
func (f *funcPtrType) ValueTypes() []api.ValueType { return []api.ValueType{api.ValueTypeI32} }

func (f *funcPtrType) Load(m *native.Memory, addr native.Addr) (Code, error) {
	if err := m.Check(addr, pointerFootprint); err != nil {
		return Code{}, err
	}
	v, err := m.ReadUint32(addr)
	if err != nil {
		return Code{}, err
	}
	return CodeAt(m, native.Addr(v)), nil
}

func (f *funcPtrType) Store(m *native.Memory, addr native.Addr, v Code) error {
	if err := sameMemory(m, v.mem); err != nil {
		return err
	}
	if err := m.Check(addr, pointerFootprint); err != nil {
		return err
	}
	return m.WriteUint32(addr, uint32(v.addr))
}

func (f *funcPtrType) Lift(m *native.Memory, stack []uint64) (Code, error) {
	if err := needStack(f, stack); err != nil {
		return Code{}, err
	}
	return CodeAt(m, native.Addr(api.DecodeU32(stack[0]))), nil
}

func (f *funcPtrType) Lower(m *native.Memory, v Code) ([]uint64, error) {
	if err := sameMemory(m, v.mem); err != nil {
		return nil, err
	}
	return []uint64{api.EncodeU32(uint32(v.addr))}, nil
}
