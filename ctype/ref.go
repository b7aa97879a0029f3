package ctype

import (
	"fmt"

	"github.com/caffeineduck/memview/native"
)

// Ref binds a descriptor to an address. Unlike a Ptr, a Ref is only created
// after the address has been checked against the descriptor's footprint.
type Ref[T any] struct {
	mem  *native.Memory
	addr native.Addr
	t    Type[T]
}

// Bind checks that addr can hold a value described by t and returns a
// handle reading and writing it through t.
func Bind[T any](m *native.Memory, addr native.Addr, t Type[T]) (Ref[T], error) {
	if err := m.Check(addr, t.Footprint()); err != nil {
		return Ref[T]{}, fmt.Errorf("bind %s at %s: %w", t.Name(), addr, err)
	}
	return Ref[T]{mem: m, addr: addr, t: t}, nil
}

// Rebind returns a handle to the same address as r described by u. The two
// handles alias; u must have r's footprint.
func Rebind[T, U any](r Ref[T], u Type[U]) (Ref[U], error) {
	if r.t == nil {
		return Ref[U]{}, native.ErrNullAddress
	}
	if err := checkFootprint(r.t, u); err != nil {
		return Ref[U]{}, err
	}
	return Ref[U]{mem: r.mem, addr: r.addr, t: u}, nil
}

func (r Ref[T]) Get() (T, error) {
	if r.t == nil {
		var zero T
		return zero, native.ErrNullAddress
	}
	return r.t.Load(r.mem, r.addr)
}

func (r Ref[T]) Set(v T) error {
	if r.t == nil {
		return native.ErrNullAddress
	}
	return r.t.Store(r.mem, r.addr, v)
}

func (r Ref[T]) Addr() native.Addr      { return r.addr }
func (r Ref[T]) Memory() *native.Memory { return r.mem }
func (r Ref[T]) Type() Type[T]          { return r.t }

// Ptr returns a pointer to the bound value.
func (r Ref[T]) Ptr() Ptr[T] {
	return PtrAt(r.mem, r.addr, r.t)
}

func (r Ref[T]) String() string {
	if r.t == nil {
		return "ref(nil)"
	}
	return fmt.Sprintf("%s@%s", r.t.Name(), r.addr)
}
