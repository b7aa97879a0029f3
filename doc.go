// Package memview provides typed views over native memory for calling
// foreign functions.
//
// # Overview
//
// Native libraries run as WebAssembly modules sharing one linear memory.
// Values in that memory are read and written through descriptors: C
// scalars, pointers, arrays, structs and function pointers, plus views that
// present an existing descriptor as a different Go type without changing
// its footprint.
//
// # Basic Usage
//
//	rt, _ := foreign.New(ctx)
//	defer rt.Close(ctx)
//	rt.Open(ctx, hostfunc.Arith())
//
//	binop := foreign.Sig(ctype.Int32, ctype.Int32, ctype.Int32)
//	op := rt.NullableFunc(binop)
//	selectOp, _ := rt.Resolve("arith", "select_op", foreign.Sig(op, ctype.Int32))
//
//	v, _ := selectOp.Call(ctx, int32(0))
//	add := v.(ctype.Optional[*foreign.Func]).Must()
//	add.Call(ctx, int32(5), int32(4)) // 9
//
// # Views
//
//	polar := ctype.View(ctype.Complex128,
//	    func(c complex128) Polar { ... },
//	    func(p Polar) complex128 { ... })
//
// A view occupies exactly the bytes of its base, so the same address can be
// read as either type.
//
// See the [native], [ctype], [foreign] and [hostfunc] packages for detailed
// API documentation.
package memview
