package inspect

import (
	"fmt"
	"math/cmplx"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/foreign"
	"github.com/caffeineduck/memview/native"
)

// Polar is a complex number by norm and angle.
type Polar struct {
	R     float64
	Theta float64
}

func (p Polar) String() string {
	return fmt.Sprintf("polar(r=%g, theta=%g)", p.R, p.Theta)
}

// PolarView reads and writes a double _Complex by norm and angle.
var PolarView = ctype.View(ctype.Complex128,
	func(c complex128) Polar {
		r, theta := cmplx.Polar(c)
		return Polar{R: r, Theta: theta}
	},
	func(p Polar) complex128 { return cmplx.Rect(p.R, p.Theta) },
	ctype.Named("polar"),
)

// CharView reads a C int as the character it encodes.
var CharView = ctype.View(ctype.Int32,
	func(i int32) rune { return rune(i) },
	func(r rune) int32 { return int32(r) },
	ctype.Named("chr"),
)

// typeInfo is a descriptor the shell can parse values for.
type typeInfo struct {
	name   string
	desc   ctype.Descriptor
	arity  int
	parse  func(s *Shell, args []string) (any, error)
	format func(v any) string
}

func (t *typeInfo) show(v any) string {
	if t.format != nil {
		return t.format(v)
	}
	return fmt.Sprint(v)
}

func signed[T int8 | int16 | int32 | int64](name string, t ctype.Type[T], bits int) *typeInfo {
	return &typeInfo{name: name, desc: t, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
		v, err := strconv.ParseInt(a[0], 0, bits)
		return T(v), err
	}}
}

func unsigned[T uint8 | uint16 | uint32 | uint64](name string, t ctype.Type[T], bits int) *typeInfo {
	return &typeInfo{name: name, desc: t, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
		v, err := strconv.ParseUint(a[0], 0, bits)
		return T(v), err
	}}
}

func parseFloat(a string) (float64, error) {
	return strconv.ParseFloat(a, 64)
}

func parseAddr(a string) (native.Addr, error) {
	v, err := strconv.ParseUint(a, 0, 32)
	if err != nil {
		return native.Null, fmt.Errorf("address %q: %w", a, err)
	}
	return native.Addr(v), nil
}

func parseRune(a string) (rune, error) {
	if r, n := utf8.DecodeRuneInString(a); n == len(a) && n > 0 {
		return r, nil
	}
	v, err := strconv.ParseInt(a, 0, 32)
	return rune(v), err
}

func quoteRune(v any) string {
	switch r := v.(type) {
	case byte:
		return strconv.QuoteRune(rune(r))
	case rune:
		return strconv.QuoteRune(r)
	}
	return fmt.Sprint(v)
}

// binop is the signature of arith's add and multiply.
var binop = foreign.Sig(ctype.Int32, ctype.Int32, ctype.Int32)

func (s *Shell) builtinTypes() map[string]*typeInfo {
	m := s.mem
	charPtr := ctype.Pointer(ctype.Char)
	complexPtr := ctype.Pointer(ctype.Complex128)

	types := []*typeInfo{
		signed("i8", ctype.Int8, 8),
		signed("i16", ctype.Int16, 16),
		signed("i32", ctype.Int32, 32),
		signed("i64", ctype.Int64, 64),
		unsigned("u8", ctype.Uint8, 8),
		unsigned("u16", ctype.Uint16, 16),
		unsigned("u32", ctype.Uint32, 32),
		unsigned("u64", ctype.Uint64, 64),
		unsigned("size", ctype.Size, 32),
		{name: "f32", desc: ctype.Float32, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			v, err := strconv.ParseFloat(a[0], 32)
			return float32(v), err
		}},
		{name: "f64", desc: ctype.Float64, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			return parseFloat(a[0])
		}},
		{name: "bool", desc: ctype.Bool, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			return strconv.ParseBool(a[0])
		}},
		{name: "char", desc: ctype.Char, arity: 1, format: quoteRune, parse: func(_ *Shell, a []string) (any, error) {
			r, err := parseRune(a[0])
			if err != nil {
				return nil, err
			}
			if r > 0xff {
				return nil, fmt.Errorf("char %q out of range", r)
			}
			return byte(r), nil
		}},
		{name: "chr", desc: CharView, arity: 1, format: quoteRune, parse: func(_ *Shell, a []string) (any, error) {
			return parseRune(a[0])
		}},
		{name: "cartesian", desc: ctype.Complex128, arity: 2, parse: func(_ *Shell, a []string) (any, error) {
			re, err := parseFloat(a[0])
			if err != nil {
				return nil, err
			}
			im, err := parseFloat(a[1])
			return complex(re, im), err
		}},
		{name: "polar", desc: PolarView, arity: 2, parse: func(_ *Shell, a []string) (any, error) {
			r, err := parseFloat(a[0])
			if err != nil {
				return nil, err
			}
			theta, err := parseFloat(a[1])
			return Polar{R: r, Theta: theta}, err
		}},
		{name: "ptr", desc: charPtr, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			addr, err := parseAddr(a[0])
			return ctype.PtrAt(m, addr, ctype.Char), err
		}},
		{name: "cartesian*", desc: complexPtr, arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			addr, err := parseAddr(a[0])
			return ctype.PtrAt(m, addr, ctype.Complex128), err
		}},
		{name: "ptr?", desc: ctype.Nullable(ctype.Char), arity: 1, parse: func(_ *Shell, a []string) (any, error) {
			if a[0] == "null" {
				return ctype.Absent[ctype.Ptr[byte]](), nil
			}
			addr, err := parseAddr(a[0])
			return ctype.Present(ctype.PtrAt(m, addr, ctype.Char)), err
		}},
		{name: "string", desc: ctype.StringIn(lineStrings{s}), arity: 1, format: quoteString, parse: func(_ *Shell, a []string) (any, error) {
			return a[0], nil
		}},
		{name: "fn?", desc: s.rt.NullableFunc(binop), arity: 1, parse: func(s *Shell, a []string) (any, error) {
			if a[0] == "null" {
				return ctype.Absent[*foreign.Func](), nil
			}
			if f, ok := s.nullableArg(a[0]); ok {
				return ctype.Present(f), nil
			}
			addr, err := parseAddr(a[0])
			if err != nil {
				return nil, err
			}
			f, err := s.rt.Bind(addr, binop)
			if err != nil {
				return nil, err
			}
			return ctype.Present(f), nil
		}},
	}

	out := make(map[string]*typeInfo, len(types))
	for _, t := range types {
		out[t.name] = t
	}
	return out
}

func quoteString(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}

var charArray = regexp.MustCompile(`^char\[(\d+)\]$`)

// typeOf returns the named type. char[N] names a fixed size string buffer.
func (s *Shell) typeOf(name string) (*typeInfo, error) {
	if t, ok := s.types[name]; ok {
		return t, nil
	}
	if m := charArray.FindStringSubmatch(name); m != nil {
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
		}
		t := &typeInfo{name: name, desc: ctype.Bytes(uint32(n)), arity: 1, format: quoteString, parse: func(_ *Shell, a []string) (any, error) {
			return a[0], nil
		}}
		s.types[name] = t
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

func (s *Shell) typeNames() []string {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
