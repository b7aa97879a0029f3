package ctype

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/memview/native"
)

var (
	ErrValueType   = errors.New("value has wrong type")
	ErrNotScalar   = errors.New("type has no call stack representation")
	ErrReadOnly    = errors.New("type is read only")
	ErrUnsealed    = errors.New("struct is not sealed")
	ErrShortStack  = errors.New("not enough values on call stack")
	ErrWrongMemory = errors.New("pointer belongs to another memory")
)

// Direction is the side of a view a conversion runs on.
type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// ViewConversionError reports a conversion that rejected its input.
type ViewConversionError struct {
	View      string
	Direction Direction
	Err       error
}

func (e *ViewConversionError) Error() string {
	return fmt.Sprintf("view %s: %s conversion: %v", e.View, e.Direction, e.Err)
}

func (e *ViewConversionError) Unwrap() error {
	return e.Err
}

// FootprintMismatchError reports an attempt to bind a descriptor to a region
// laid out for another footprint.
type FootprintMismatchError struct {
	From, To string
	Have     native.Footprint
	Want     native.Footprint
}

func (e *FootprintMismatchError) Error() string {
	return fmt.Sprintf("cannot reinterpret %s (%s) as %s (%s)", e.From, e.Have, e.To, e.Want)
}

// NullDereferenceError reports unwrapping an absent value.
type NullDereferenceError struct {
	Type string
}

func (e *NullDereferenceError) Error() string {
	if e.Type == "" {
		return "unwrap of absent value"
	}
	return fmt.Sprintf("unwrap of absent %s", e.Type)
}

func checkFootprint(from, to Descriptor) error {
	if from.Footprint() != to.Footprint() {
		return &FootprintMismatchError{
			From: from.Name(),
			To:   to.Name(),
			Have: from.Footprint(),
			Want: to.Footprint(),
		}
	}
	return nil
}

func valueTypeError[T any](d Descriptor, v any) error {
	var want T
	return fmt.Errorf("%w: %s wants %T, got %T", ErrValueType, d.Name(), want, v)
}
