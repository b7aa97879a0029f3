package ctype

import (
	"fmt"

	"github.com/caffeineduck/memview/native"
)

// Allocator provides storage for values written through allocating views.
// [native.Arena] implements it.
type Allocator interface {
	Memory() *native.Memory
	CString(s string) (native.Addr, error)
}

var charPtr = Pointer(Char)

// String reads a NUL terminated char* as a Go string. It cannot be written;
// use [StringIn] for strings that are passed to native code.
var String Type[string] = PartialView(charPtr, readCString, func(string) (Ptr[byte], error) {
	return Ptr[byte]{}, ErrReadOnly
}, Named("char*"))

// StringIn is String whose writes copy the string into memory obtained from
// alloc. The copy lives until alloc releases it.
func StringIn(alloc Allocator) Type[string] {
	return PartialView(charPtr, readCString, func(s string) (Ptr[byte], error) {
		addr, err := alloc.CString(s)
		if err != nil {
			return Ptr[byte]{}, fmt.Errorf("copy string: %w", err)
		}
		return PtrAt(alloc.Memory(), addr, Char), nil
	}, Named("char*"))
}

func readCString(p Ptr[byte]) (string, error) {
	if p.IsNull() {
		return "", native.ErrNullAddress
	}
	return p.Memory().ReadCString(p.Addr())
}

// Bytes views a char buffer of fixed length n as a string up to its first
// NUL. Writes fail if s and its terminator do not fit.
func Bytes(n uint32) Type[string] {
	return PartialView(ArrayOf(Char, n),
		func(b []byte) (string, error) {
			for i, c := range b {
				if c == 0 {
					return string(b[:i]), nil
				}
			}
			return string(b), nil
		},
		func(s string) ([]byte, error) {
			if uint32(len(s)) >= n {
				return nil, fmt.Errorf("string of %d bytes does not fit char[%d]", len(s), n)
			}
			b := make([]byte, n)
			copy(b, s)
			return b, nil
		},
		Named(fmt.Sprintf("char[%d]", n)),
	)
}
