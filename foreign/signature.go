package foreign

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/caffeineduck/memview/ctype"
	"github.com/tetratelabs/wazero/api"
)

var ErrSignatureMismatch = errors.New("signature mismatch")

// Signature describes how the arguments and result of a function are
// marshalled. Any descriptor with a call representation can be used,
// including views.
type Signature struct {
	Params []ctype.Descriptor
	Result ctype.Descriptor // nil for void
}

// Sig returns the signature of a function returning result.
func Sig(result ctype.Descriptor, params ...ctype.Descriptor) Signature {
	return Signature{Params: params, Result: result}
}

// Void returns the signature of a function without result.
func Void(params ...ctype.Descriptor) Signature {
	return Signature{Params: params}
}

// ParamTypes flattens the parameters into wasm value types.
func (s Signature) ParamTypes() []api.ValueType {
	var out []api.ValueType
	for _, p := range s.Params {
		out = append(out, p.ValueTypes()...)
	}
	return out
}

// ResultTypes flattens the result into wasm value types.
func (s Signature) ResultTypes() []api.ValueType {
	if s.Result == nil {
		return nil
	}
	return s.Result.ValueTypes()
}

// Validate checks that every parameter and the result can be passed by
// value.
func (s Signature) Validate() error {
	for i, p := range s.Params {
		if p == nil {
			return fmt.Errorf("parameter %d: nil descriptor", i)
		}
		if !ctype.IsScalar(p) {
			return fmt.Errorf("parameter %d: %w: %s", i, ctype.ErrNotScalar, p.Name())
		}
	}
	if s.Result != nil && !ctype.IsScalar(s.Result) {
		return fmt.Errorf("result: %w: %s", ctype.ErrNotScalar, s.Result.Name())
	}
	return nil
}

// check compares s with the definition of the function it is bound to.
func (s Signature) check(def api.FunctionDefinition) error {
	if !slices.Equal(s.ParamTypes(), def.ParamTypes()) || !slices.Equal(s.ResultTypes(), def.ResultTypes()) {
		return fmt.Errorf("%w: %s is %s, not %s", ErrSignatureMismatch,
			def.DebugName(), typeList(def.ParamTypes(), def.ResultTypes()), typeList(s.ParamTypes(), s.ResultTypes()))
	}
	return nil
}

func typeList(params, results []api.ValueType) string {
	name := func(ts []api.ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", name(params), name(results))
}

// String renders s as a C function pointer type.
func (s Signature) String() string {
	result := "void"
	if s.Result != nil {
		result = s.Result.Name()
	}
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.Name()
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return fmt.Sprintf("%s (*)(%s)", result, strings.Join(params, ", "))
}
