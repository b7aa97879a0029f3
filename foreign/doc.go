// Package foreign calls native functions through typed signatures and
// passes functions across the boundary as nullable function pointers.
//
// # Overview
//
// A [Runtime] owns a wazero runtime and the linear memory every library
// loaded into it shares. Libraries are [hostfunc.Library] values; opening
// one gives each of its functions a code address.
//
//	rt, err := foreign.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	rt.Open(ctx, hostfunc.Arith())
//	add, _ := rt.Resolve("arith", "add", foreign.Sig(ctype.Int32, ctype.Int32, ctype.Int32))
//	sum, _ := add.Call(ctx, int32(5), int32(4)) // 9
//
// # Signatures
//
// A [Signature] lists descriptors, not wasm types. Arguments are lowered and
// results lifted through them, so a view parameter converts its argument on
// the way in and a view result converts on the way out.
//
// # Function pointers
//
// [Runtime.NullableFunc] is the descriptor of a function pointer that may be
// null. Reading gives Absent or a [Func] bound to the address it read;
// writing a Func stores its address. A Go function made with
// [Runtime.HostFunc] receives an address the first time it is written, by
// registering a [Trampoline] for it:
//
//	op := rt.NullableFunc(binop)
//	double, _ := rt.HostFunc("double", binop, func(ctx context.Context, args []any) (any, error) {
//	    return 2 * args[0].(int32), nil
//	})
//	defer double.Release(ctx)
//
//	apply, _ := rt.Resolve("arith", "apply", foreign.Sig(ctype.Int32, op, ctype.Int32, ctype.Int32))
//	apply.Call(ctx, ctype.Present(double), int32(21), int32(0)) // 42
//
// A released trampoline keeps its address reserved; foreign code that still
// holds it gets an error instead of another function.
package foreign
