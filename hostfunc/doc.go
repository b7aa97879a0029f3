// Package hostfunc provides native libraries: Go functions with wasm
// signatures that play the part of foreign C code.
//
// # Overview
//
// A [Library] is loaded by the foreign runtime as a wazero host module. Its
// functions receive an [Env] giving access to the caller's memory and code
// table, so they can dereference pointers, resolve their own symbols and call
// back through function pointers.
//
//	lib := hostfunc.NewLibrary("mylib")
//	lib.Register("twice", hostfunc.Native{
//	    Params:  []api.ValueType{api.ValueTypeI32},
//	    Results: []api.ValueType{api.ValueTypeI32},
//	    Fn: func(ctx context.Context, env hostfunc.Env, stack []uint64) error {
//	        stack[0] = api.EncodeI32(2 * api.DecodeI32(stack[0]))
//	        return nil
//	    },
//	})
//
// # Bundled Libraries
//
// [Libc] provides strlen, strcpy, strcat, strcmp, memset and memcpy.
//
// [Arith] provides integer operations selected and applied through function
// pointers, and complex multiplication through pointers.
//
// [KVStore.Library] provides a string key-value store whose lookups return
// nullable char pointers.
//
// A function that returns an error aborts the foreign call it runs in.
package hostfunc
