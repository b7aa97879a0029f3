package ctype

import (
	"fmt"
	"math"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

type arrayType[T any] struct {
	boxed[[]T]
	elem Type[T]
	n    uint32
	size uint32
}

// ArrayOf returns the descriptor of a fixed size array T[n]. Arrays are not
// passed by value. It panics if the array does not fit the address space.
func ArrayOf[T any](elem Type[T], n uint32) Type[[]T] {
	size := uint64(elem.Footprint().Size) * uint64(n)
	if size > math.MaxUint32 {
		panic(fmt.Sprintf("ctype: array %s[%d] is %d bytes, larger than the address space", elem.Name(), n, size))
	}
	a := &arrayType[T]{elem: elem, n: n, size: uint32(size)}
	a.boxed = boxed[[]T]{a}
	return a
}

func (a *arrayType[T]) Name() string { return fmt.Sprintf("%s[%d]", a.elem.Name(), a.n) }

func (a *arrayType[T]) Footprint() native.Footprint {
	f := a.elem.Footprint()
	return native.Footprint{Size: a.size, Align: f.Align}
}

func (a *arrayType[T]) Kind() Kind                  { return KindPrimitive }
func (a *arrayType[T]) ValueTypes() []api.ValueType { return nil }
func (a *arrayType[T]) Len() uint32                 { return a.n }

func (a *arrayType[T]) Load(m *native.Memory, addr native.Addr) ([]T, error) {
	if err := m.Check(addr, a.Footprint()); err != nil {
		return nil, err
	}
	stride := int64(a.elem.Footprint().Size)
	out := make([]T, a.n)
	for i := range out {
		v, err := a.elem.Load(m, addr.Add(int64(i)*stride))
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", a.Name(), i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (a *arrayType[T]) Store(m *native.Memory, addr native.Addr, v []T) error {
	if uint32(len(v)) != a.n {
		return fmt.Errorf("%w: %s wants %d elements, got %d", ErrValueType, a.Name(), a.n, len(v))
	}
	if err := m.Check(addr, a.Footprint()); err != nil {
		return err
	}
	stride := int64(a.elem.Footprint().Size)
	return atomically(m, addr, a.Footprint().Size, func() error {
		for i, e := range v {
			if err := a.elem.Store(m, addr.Add(int64(i)*stride), e); err != nil {
				return fmt.Errorf("%s index %d: %w", a.Name(), i, err)
			}
		}
		return nil
	})
}

func (a *arrayType[T]) Lift(*native.Memory, []uint64) ([]T, error)  { return nil, notScalar(a) }
func (a *arrayType[T]) Lower(*native.Memory, []T) ([]uint64, error) { return nil, notScalar(a) }

// atomically runs store and restores the n bytes at addr if it fails, so a
// multi-part store is never left half written.
func atomically(m *native.Memory, addr native.Addr, n uint32, store func() error) error {
	saved, err := m.Read(addr, n)
	if err != nil {
		return err
	}
	if err := store(); err != nil {
		if rerr := m.Write(addr, saved); rerr != nil {
			return fmt.Errorf("%w (restore failed: %v)", err, rerr)
		}
		return err
	}
	return nil
}
