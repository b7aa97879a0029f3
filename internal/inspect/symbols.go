package inspect

import (
	"context"
	"fmt"

	"github.com/caffeineduck/memview/foreign"
)

// symbol is a callable function with its signature spelled in shell types.
type symbol struct {
	lib    string
	name   string
	result string // "" for void
	params []string
}

var symbols = []symbol{
	{lib: "libc", name: "strlen", result: "size", params: []string{"string"}},
	{lib: "libc", name: "strcpy", result: "string", params: []string{"ptr", "string"}},
	{lib: "libc", name: "strcat", result: "string", params: []string{"ptr", "string"}},
	{lib: "libc", name: "strcmp", result: "i32", params: []string{"string", "string"}},
	{lib: "libc", name: "memset", result: "ptr", params: []string{"ptr", "i32", "size"}},
	{lib: "libc", name: "memcpy", result: "ptr", params: []string{"ptr", "ptr", "size"}},
	{lib: "arith", name: "add", result: "i32", params: []string{"i32", "i32"}},
	{lib: "arith", name: "multiply", result: "i32", params: []string{"i32", "i32"}},
	{lib: "arith", name: "select_op", result: "fn?", params: []string{"i32"}},
	{lib: "arith", name: "apply", result: "i32", params: []string{"fn?", "i32", "i32"}},
	{lib: "arith", name: "is_null", result: "i32", params: []string{"fn?"}},
	{lib: "arith", name: "cmul", params: []string{"cartesian*", "cartesian*", "cartesian*"}},
	{lib: "arith", name: "cscale", result: "cartesian", params: []string{"cartesian", "f64"}},
	{lib: "kv", name: "kv_set", params: []string{"string", "string"}},
	{lib: "kv", name: "kv_get", result: "ptr?", params: []string{"string"}},
	{lib: "kv", name: "kv_delete", result: "i32", params: []string{"string"}},
	{lib: "kv", name: "kv_len", result: "size"},
}

// callable is a function the call command can invoke.
type callable struct {
	fn     *foreign.Func
	result *typeInfo
	params []*typeInfo
}

func (s *Shell) signature(result string, params []string) (foreign.Signature, *typeInfo, []*typeInfo, error) {
	var sig foreign.Signature
	var res *typeInfo
	if result != "" {
		t, err := s.typeOf(result)
		if err != nil {
			return sig, nil, nil, err
		}
		res = t
		sig.Result = t.desc
	}
	ps := make([]*typeInfo, len(params))
	for i, p := range params {
		t, err := s.typeOf(p)
		if err != nil {
			return sig, nil, nil, err
		}
		ps[i] = t
		sig.Params = append(sig.Params, t.desc)
	}
	return sig, res, ps, nil
}

func (s *Shell) resolveSymbols() error {
	for _, sym := range symbols {
		sig, res, params, err := s.signature(sym.result, sym.params)
		if err != nil {
			return err
		}
		fn, err := s.rt.Resolve(sym.lib, sym.name, sig)
		if err != nil {
			return fmt.Errorf("resolve %s.%s: %w", sym.lib, sym.name, err)
		}
		s.funcs[sym.name] = &callable{fn: fn, result: res, params: params}
	}
	return nil
}

// registerHostFuncs adds Go functions with the add/multiply signature. They
// are promoted to trampolines when passed as fn? arguments.
func (s *Shell) registerHostFuncs() error {
	host := map[string]func(a, b int32) int32{
		"sub": func(a, b int32) int32 { return a - b },
		"max": func(a, b int32) int32 { return max(a, b) },
	}
	i32, _ := s.typeOf("i32")
	for name, op := range host {
		fn, err := s.rt.HostFunc(name, binop, func(_ context.Context, args []any) (any, error) {
			return op(args[0].(int32), args[1].(int32)), nil
		})
		if err != nil {
			return err
		}
		s.funcs[name] = &callable{fn: fn, result: i32, params: []*typeInfo{i32, i32}}
		s.hosts = append(s.hosts, fn)
	}
	return nil
}

// nullableArg resolves a fn? argument naming a function.
func (s *Shell) nullableArg(name string) (*foreign.Func, bool) {
	c, ok := s.funcs[name]
	if !ok || c.fn.Signature().String() != binop.String() {
		return nil, false
	}
	return c.fn, true
}
