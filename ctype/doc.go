// Package ctype describes how values occupy native memory and how they are
// reinterpreted through views.
//
// # Overview
//
// A [Descriptor] gives the footprint of a native value and knows how to load
// it from, and store it to, a [native.Memory]. It also knows how the value is
// flattened onto a wasm call stack so that descriptors can describe foreign
// function signatures. [Type] is the typed face of a descriptor.
//
// Primitive descriptors cover integers, floats, pointers, function pointers,
// arrays and structs:
//
//	mem := native.TestMemory(t)
//	addr, _ := mem.Alloc(4, 4)
//	ref, _ := ctype.Bind(mem, addr, ctype.Int32)
//	ref.Set(42)
//
// # Views
//
// [View] wraps a descriptor with a pair of conversions and yields a new
// descriptor of the same footprint:
//
//	chr := ctype.View(ctype.Int32,
//	    func(i int32) rune { return rune(i) },
//	    func(r rune) int32 { return int32(r) },
//	)
//
// Views nest. Reads apply the innermost conversion first; writes apply the
// outermost conversion first. A conversion that fails, or panics, surfaces as
// a [*ViewConversionError] and nothing is written.
//
// [Nullable] is a view over a raw pointer that maps the null address to an
// absent [Optional].
//
// # Aliasing
//
// Two descriptors with the same footprint may be bound to one address:
//
//	cart, _ := ctype.Bind(mem, addr, ctype.Complex128)
//	polar, _ := ctype.Rebind(cart, Polar)
//
// [Rebind] and [Cast] refuse descriptors of a different footprint with a
// [*FootprintMismatchError].
package ctype
