package hostfunc

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Libc returns a library with a small subset of the C string functions.
// Every function reads and writes the caller's memory.
func Libc() *Library {
	lib := NewLibrary("libc")

	lib.Register("strlen", Native{
		Params:  sig(i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			s, err := env.Memory().ReadCString(addr(stack[0]))
			if err != nil {
				return err
			}
			stack[0] = api.EncodeU32(uint32(len(s)))
			return nil
		},
	})

	lib.Register("strcpy", Native{
		Params:  sig(i32, i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			src, err := m.ReadCString(addr(stack[1]))
			if err != nil {
				return err
			}
			return m.WriteCString(addr(stack[0]), src)
		},
	})

	// strcat appends src to the string in dst. dst must have room for both.
	lib.Register("strcat", Native{
		Params:  sig(i32, i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			dst := addr(stack[0])
			head, err := m.ReadCString(dst)
			if err != nil {
				return err
			}
			src, err := m.ReadCString(addr(stack[1]))
			if err != nil {
				return err
			}
			return m.WriteCString(dst.Add(int64(len(head))), src)
		},
	})

	lib.Register("strcmp", Native{
		Params:  sig(i32, i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			a, err := m.ReadCString(addr(stack[0]))
			if err != nil {
				return err
			}
			b, err := m.ReadCString(addr(stack[1]))
			if err != nil {
				return err
			}
			stack[0] = api.EncodeI32(int32(strings.Compare(a, b)))
			return nil
		},
	})

	lib.Register("memset", Native{
		Params:  sig(i32, i32, i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			c := byte(stack[1])
			fill := make([]byte, api.DecodeU32(stack[2]))
			for i := range fill {
				fill[i] = c
			}
			return env.Memory().Write(addr(stack[0]), fill)
		},
	})

	lib.Register("memcpy", Native{
		Params:  sig(i32, i32, i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			return env.Memory().Move(addr(stack[0]), addr(stack[1]), api.DecodeU32(stack[2]))
		},
	})

	return lib
}
