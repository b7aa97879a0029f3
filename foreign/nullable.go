package foreign

import (
	"context"
	"fmt"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/native"
)

// NullableFunc returns the descriptor of a nullable function pointer of
// signature sig. Reading a null pointer gives Absent; any other address is
// bound to sig once, when it is read. Writing a host function registers a
// trampoline for it the first time; writing a function whose trampoline has
// been released fails.
func (r *Runtime) NullableFunc(sig Signature) ctype.Type[ctype.Optional[*Func]] {
	return ctype.PartialView(ctype.FuncPtr(sig.String()),
		func(c ctype.Code) (ctype.Optional[*Func], error) {
			if c.IsNull() {
				return ctype.Absent[*Func](), nil
			}
			f, err := r.Bind(c.Addr(), sig)
			if err != nil {
				return ctype.Absent[*Func](), err
			}
			return ctype.Present(f), nil
		},
		func(o ctype.Optional[*Func]) (ctype.Code, error) {
			f, ok := o.Get()
			if !ok || f == nil {
				return ctype.CodeAt(r.mem, native.Null), nil
			}
			return r.codeOf(f, sig)
		},
		ctype.Named(sig.String()+"?"),
	)
}

// Function is NullableFunc without the null case: reading a null pointer
// fails with ErrNullFunction.
func (r *Runtime) Function(sig Signature) ctype.Type[*Func] {
	return ctype.PartialView(ctype.FuncPtr(sig.String()),
		func(c ctype.Code) (*Func, error) {
			if c.IsNull() {
				return nil, ErrNullFunction
			}
			return r.Bind(c.Addr(), sig)
		},
		func(f *Func) (ctype.Code, error) {
			if f == nil {
				return ctype.Code{}, ErrNullFunction
			}
			return r.codeOf(f, sig)
		},
		ctype.Named(sig.String()),
	)
}

func (r *Runtime) codeOf(f *Func, sig Signature) (ctype.Code, error) {
	if f.sig.String() != sig.String() {
		return ctype.Code{}, fmt.Errorf("%w: %s is %s, not %s", ErrSignatureMismatch, f.name, f.sig, sig)
	}
	addr, err := f.address(context.Background(), r)
	if err != nil {
		return ctype.Code{}, err
	}
	return ctype.CodeAt(r.mem, addr), nil
}
