package ctype

import (
	"fmt"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// Viewed is implemented by descriptors that wrap another descriptor.
type Viewed interface {
	Descriptor
	Base() Descriptor
}

// ViewOption configures a view.
type ViewOption func(*viewConfig)

type viewConfig struct {
	name string
}

// Named sets the name a view reports in errors and diagnostics.
func Named(name string) ViewOption {
	return func(c *viewConfig) {
		c.name = name
	}
}

type view[B, T any] struct {
	boxed[T]
	name  string
	base  Type[B]
	read  func(B) (T, error)
	write func(T) (B, error)
}

// View returns a descriptor that stores T values as B values of base,
// converting with read after every load and write before every store. The
// footprint and call representation are those of base.
func View[B, T any](base Type[B], read func(B) T, write func(T) B, opts ...ViewOption) Type[T] {
	return PartialView(base,
		func(b B) (T, error) { return read(b), nil },
		func(t T) (B, error) { return write(t), nil },
		opts...,
	)
}

// PartialView is View for conversions that can reject their input. A
// rejected or panicking conversion is reported as a [*ViewConversionError];
// a rejected write leaves memory untouched.
func PartialView[B, T any](base Type[B], read func(B) (T, error), write func(T) (B, error), opts ...ViewOption) Type[T] {
	cfg := viewConfig{name: "view(" + base.Name() + ")"}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &view[B, T]{name: cfg.name, base: base, read: read, write: write}
	v.boxed = boxed[T]{v}
	return v
}

func (v *view[B, T]) Name() string                { return v.name }
func (v *view[B, T]) Footprint() native.Footprint { return v.base.Footprint() }
func (v *view[B, T]) Kind() Kind                  { return KindView }
func (v *view[B, T]) ValueTypes() []api.ValueType { return v.base.ValueTypes() }
func (v *view[B, T]) Base() Descriptor            { return v.base }

func (v *view[B, T]) Load(m *native.Memory, addr native.Addr) (T, error) {
	b, err := v.base.Load(m, addr)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert(v.name, Read, v.read, b)
}

func (v *view[B, T]) Store(m *native.Memory, addr native.Addr, t T) error {
	b, err := convert(v.name, Write, v.write, t)
	if err != nil {
		return err
	}
	return v.base.Store(m, addr, b)
}

func (v *view[B, T]) Lift(m *native.Memory, stack []uint64) (T, error) {
	b, err := v.base.Lift(m, stack)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert(v.name, Read, v.read, b)
}

func (v *view[B, T]) Lower(m *native.Memory, t T) ([]uint64, error) {
	b, err := convert(v.name, Write, v.write, t)
	if err != nil {
		return nil, err
	}
	return v.base.Lower(m, b)
}

func convert[A, R any](name string, dir Direction, f func(A) (R, error), a A) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero R
			r = zero
			if perr, ok := p.(error); ok {
				err = &ViewConversionError{View: name, Direction: dir, Err: fmt.Errorf("panic: %w", perr)}
			} else {
				err = &ViewConversionError{View: name, Direction: dir, Err: fmt.Errorf("panic: %v", p)}
			}
		}
	}()

	r, err = f(a)
	if err != nil {
		return r, &ViewConversionError{View: name, Direction: dir, Err: err}
	}
	return r, nil
}

// Chain returns d followed by each descriptor it wraps, ending at a
// primitive.
func Chain(d Descriptor) []Descriptor {
	chain := []Descriptor{d}
	for {
		v, ok := d.(Viewed)
		if !ok {
			return chain
		}
		d = v.Base()
		chain = append(chain, d)
	}
}

// Primitive returns the raw descriptor at the bottom of d's view chain.
func Primitive(d Descriptor) Descriptor {
	c := Chain(d)
	return c[len(c)-1]
}
