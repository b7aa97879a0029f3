package hostfunc

import (
	"context"
	"fmt"

	"github.com/caffeineduck/memview/ctype"
	"github.com/tetratelabs/wazero/api"
)

// Arith returns a library of integer and complex arithmetic that trades in
// function pointers:
//
//	int add(int, int);
//	int multiply(int, int);
//	int (*select_op(int op))(int, int);  /* 0: add, 1: multiply, else NULL */
//	int apply(int (*fn)(int, int), int, int);
//	int is_null(int (*fn)(int, int));
//	void cmul(double _Complex *dst, const double _Complex *a, const double _Complex *b);
//	double _Complex cscale(double _Complex, double);
func Arith() *Library {
	lib := NewLibrary("arith")

	binop := func(op func(a, b int32) int32) Native {
		return Native{
			Params:  sig(i32, i32),
			Results: sig(i32),
			Fn: func(_ context.Context, _ Env, stack []uint64) error {
				stack[0] = api.EncodeI32(op(api.DecodeI32(stack[0]), api.DecodeI32(stack[1])))
				return nil
			},
		}
	}
	lib.Register("add", binop(func(a, b int32) int32 { return a + b }))
	lib.Register("multiply", binop(func(a, b int32) int32 { return a * b }))

	lib.Register("select_op", Native{
		Params:  sig(i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			var symbol string
			switch api.DecodeI32(stack[0]) {
			case 0:
				symbol = "add"
			case 1:
				symbol = "multiply"
			default:
				stack[0] = 0
				return nil
			}
			code, err := env.AddressOf(symbol)
			if err != nil {
				return err
			}
			stack[0] = api.EncodeU32(uint32(code))
			return nil
		},
	})

	lib.Register("apply", Native{
		Params:  sig(i32, i32, i32),
		Results: sig(i32),
		Fn: func(ctx context.Context, env Env, stack []uint64) error {
			fn := addr(stack[0])
			if fn.IsNull() {
				return ErrNullFunction
			}
			res, err := env.Invoke(ctx, fn, stack[1], stack[2])
			if err != nil {
				return fmt.Errorf("apply %s: %w", fn, err)
			}
			if len(res) != 1 {
				return fmt.Errorf("apply %s: want 1 result, got %d", fn, len(res))
			}
			stack[0] = res[0]
			return nil
		},
	})

	lib.Register("is_null", Native{
		Params:  sig(i32),
		Results: sig(i32),
		Fn: func(_ context.Context, _ Env, stack []uint64) error {
			if addr(stack[0]).IsNull() {
				stack[0] = 1
			} else {
				stack[0] = 0
			}
			return nil
		},
	})

	lib.Register("cmul", Native{
		Params: sig(i32, i32, i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			a, err := ctype.Complex128.Load(m, addr(stack[1]))
			if err != nil {
				return err
			}
			b, err := ctype.Complex128.Load(m, addr(stack[2]))
			if err != nil {
				return err
			}
			return ctype.Complex128.Store(m, addr(stack[0]), a*b)
		},
	})

	lib.Register("cscale", Native{
		Params:  sig(f64, f64, f64),
		Results: sig(f64, f64),
		Fn: func(_ context.Context, _ Env, stack []uint64) error {
			k := api.DecodeF64(stack[2])
			stack[0] = api.EncodeF64(api.DecodeF64(stack[0]) * k)
			stack[1] = api.EncodeF64(api.DecodeF64(stack[1]) * k)
			return nil
		},
	})

	return lib
}
