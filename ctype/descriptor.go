package ctype

import (
	"fmt"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// Kind distinguishes raw layouts from views over them.
type Kind int

const (
	KindPrimitive Kind = iota
	KindView
)

func (k Kind) String() string {
	if k == KindView {
		return "view"
	}
	return "primitive"
}

// Descriptor is the untyped face of a memory type. Descriptors are immutable
// and safe to share between goroutines.
type Descriptor interface {
	Name() string
	Footprint() native.Footprint
	Kind() Kind

	// ValueTypes is the flattened call stack representation. It is empty
	// for types that cannot be passed by value.
	ValueTypes() []api.ValueType

	LoadValue(m *native.Memory, addr native.Addr) (any, error)
	StoreValue(m *native.Memory, addr native.Addr, v any) error
	LiftValue(m *native.Memory, stack []uint64) (any, error)
	LowerValue(m *native.Memory, v any) ([]uint64, error)
}

// Type describes values of logical type T.
type Type[T any] interface {
	Descriptor

	Load(m *native.Memory, addr native.Addr) (T, error)
	Store(m *native.Memory, addr native.Addr, v T) error

	// Lift decodes a value from the front of a call stack.
	Lift(m *native.Memory, stack []uint64) (T, error)
	// Lower encodes a value into call stack slots.
	Lower(m *native.Memory, v T) ([]uint64, error)
}

// boxed derives the erased methods of a Descriptor from a Type.
type boxed[T any] struct {
	t Type[T]
}

func (b boxed[T]) LoadValue(m *native.Memory, addr native.Addr) (any, error) {
	v, err := b.t.Load(m, addr)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (b boxed[T]) StoreValue(m *native.Memory, addr native.Addr, v any) error {
	tv, ok := v.(T)
	if !ok {
		return valueTypeError[T](b.t, v)
	}
	return b.t.Store(m, addr, tv)
}

func (b boxed[T]) LiftValue(m *native.Memory, stack []uint64) (any, error) {
	v, err := b.t.Lift(m, stack)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (b boxed[T]) LowerValue(m *native.Memory, v any) ([]uint64, error) {
	tv, ok := v.(T)
	if !ok {
		return nil, valueTypeError[T](b.t, v)
	}
	return b.t.Lower(m, tv)
}

// IsScalar reports whether values of d can be passed by value in a call.
func IsScalar(d Descriptor) bool {
	return len(d.ValueTypes()) > 0
}

func needStack(d Descriptor, stack []uint64) error {
	if n := len(d.ValueTypes()); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotScalar, d.Name())
	} else if len(stack) < n {
		return fmt.Errorf("%w: %s needs %d, have %d", ErrShortStack, d.Name(), n, len(stack))
	}
	return nil
}

func notScalar(d Descriptor) error {
	return fmt.Errorf("%w: %s", ErrNotScalar, d.Name())
}
