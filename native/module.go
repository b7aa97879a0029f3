package native

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleBinary returns a wasm module whose only content is one exported
// memory of the given initial size in pages. Host modules cannot define
// memories, so the address space is provided by this synthetic module.
func ModuleBinary(pages uint32) []byte {
	mem := []byte{0x01, 0x00} // one memory, limits without maximum
	mem = appendULEB128(mem, pages)

	exp := []byte{0x01} // one export
	exp = appendULEB128(exp, uint32(len("memory")))
	exp = append(exp, "memory"...)
	exp = append(exp, 0x02, 0x00) // memory index 0

	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	bin = appendSection(bin, 0x05, mem)
	bin = appendSection(bin, 0x07, exp)
	return bin
}

// ShimFunc is one function a shim module forwards to its host module.
type ShimFunc struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// ShimBinary returns a wasm module that imports every function in funcs
// from the host module named module and exports a guest function of the
// same name that forwards its parameters to the import. Functions of host
// modules cannot be called through exports, the forwarders can.
func ShimBinary(module string, funcs []ShimFunc) []byte {
	n := uint32(len(funcs))

	types := appendULEB128(nil, n)
	imports := appendULEB128(nil, n)
	decls := appendULEB128(nil, n)
	exports := appendULEB128(nil, n)
	code := appendULEB128(nil, n)
	for i, f := range funcs {
		idx := uint32(i)

		types = append(types, 0x60)
		types = appendValueTypes(types, f.Params)
		types = appendValueTypes(types, f.Results)

		imports = appendName(imports, module)
		imports = appendName(imports, f.Name)
		imports = append(imports, 0x00) // func
		imports = appendULEB128(imports, idx)

		decls = appendULEB128(decls, idx)

		exports = appendName(exports, f.Name)
		exports = append(exports, 0x00)
		exports = appendULEB128(exports, n+idx) // imports come first in the index space

		body := []byte{0x00} // no locals
		for j := range f.Params {
			body = append(body, 0x20) // local.get
			body = appendULEB128(body, uint32(j))
		}
		body = append(body, 0x10) // call
		body = appendULEB128(body, idx)
		body = append(body, 0x0b) // end
		code = appendULEB128(code, uint32(len(body)))
		code = append(code, body...)
	}

	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	bin = appendSection(bin, 0x01, types)
	bin = appendSection(bin, 0x02, imports)
	bin = appendSection(bin, 0x03, decls)
	bin = appendSection(bin, 0x07, exports)
	bin = appendSection(bin, 0x0a, code)
	return appendSection(bin, 0x00, shimNames(module, funcs))
}

// shimNames encodes the name section, so forwarders report the debug name
// module.function of the host function they forward to.
func shimNames(module string, funcs []ShimFunc) []byte {
	b := appendName(nil, "name")

	mod := appendName(nil, module)
	b = append(b, 0x00) // module name
	b = appendULEB128(b, uint32(len(mod)))
	b = append(b, mod...)

	n := uint32(len(funcs))
	names := appendULEB128(nil, n)
	for i, f := range funcs {
		names = appendULEB128(names, n+uint32(i))
		names = appendName(names, f.Name)
	}
	b = append(b, 0x01) // function names
	b = appendULEB128(b, uint32(len(names)))
	return append(b, names...)
}

func appendValueTypes(b []byte, vts []api.ValueType) []byte {
	b = appendULEB128(b, uint32(len(vts)))
	return append(b, vts...)
}

func appendName(b []byte, name string) []byte {
	b = appendULEB128(b, uint32(len(name)))
	return append(b, name...)
}

func appendSection(b []byte, id byte, content []byte) []byte {
	b = append(b, id)
	b = appendULEB128(b, uint32(len(content)))
	return append(b, content...)
}

func appendULEB128(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// Instantiate creates a memory module named name in r and wraps its memory.
// The module lives as long as r, or until it is closed.
func Instantiate(ctx context.Context, r wazero.Runtime, name string, pages uint32, opts ...Option) (*Memory, api.Module, error) {
	if pages == 0 {
		pages = 1
	}
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := r.InstantiateWithConfig(ctx, ModuleBinary(pages), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiate memory module: %w", err)
	}
	mem := mod.Memory()
	if mem == nil {
		mod.Close(ctx)
		return nil, nil, fmt.Errorf("module %q has no memory", name)
	}
	return New(mem, opts...), mod, nil
}

// InstantiateShim instantiates ShimBinary(module, funcs) as name. The host
// module must already be instantiated in r.
func InstantiateShim(ctx context.Context, r wazero.Runtime, name, module string, funcs []ShimFunc) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := r.InstantiateWithConfig(ctx, ShimBinary(module, funcs), cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate shim %s: %w", name, err)
	}
	return mod, nil
}
