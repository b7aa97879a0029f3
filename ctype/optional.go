package ctype

import "fmt"

// Optional is a value that may be absent. It has no native layout of its
// own; nullable views produce it from pointers.
type Optional[T any] struct {
	v  T
	ok bool
}

func Present[T any](v T) Optional[T] {
	return Optional[T]{v: v, ok: true}
}

func Absent[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.v, o.ok
}

func (o Optional[T]) IsPresent() bool { return o.ok }
func (o Optional[T]) IsAbsent() bool  { return !o.ok }

// Unwrap returns the value, or a [*NullDereferenceError] if it is absent.
func (o Optional[T]) Unwrap() (T, error) {
	if !o.ok {
		return o.v, &NullDereferenceError{Type: fmt.Sprintf("%T", o.v)}
	}
	return o.v, nil
}

// Must returns the value and panics with a [*NullDereferenceError] if it is
// absent.
func (o Optional[T]) Must() T {
	v, err := o.Unwrap()
	if err != nil {
		panic(err)
	}
	return v
}

// Or returns the value, or def if it is absent.
func (o Optional[T]) Or(def T) T {
	if !o.ok {
		return def
	}
	return o.v
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "Absent"
	}
	return fmt.Sprintf("Present(%v)", o.v)
}
