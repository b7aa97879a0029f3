package ctype

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// Record is the logical value of a struct: field name to field value.
type Record map[string]any

// FieldInfo is the placement of one struct field.
type FieldInfo struct {
	Name   string
	Offset uint32
	Type   Descriptor
}

// Struct is a C struct layout. Fields are added with [AddField] and the
// layout is frozen with [Struct.Seal]; only a sealed struct can be loaded or
// stored.
type Struct struct {
	boxed[Record]
	name   string
	fields []FieldInfo
	index  map[string]int
	end    uint32
	align  uint32
	sealed bool
}

// NewStruct starts an empty struct layout.
func NewStruct(name string) *Struct {
	s := &Struct{name: name, index: make(map[string]int), align: 1}
	s.boxed = boxed[Record]{s}
	return s
}

// Field is a typed handle to a struct member.
type Field[T any] struct {
	name   string
	offset uint32
	t      Type[T]
}

// AddField appends a member of type t, placed at the next offset aligned for
// t. It panics if s is sealed, name is taken or the struct would not fit the
// address space.
func AddField[T any](s *Struct, name string, t Type[T]) Field[T] {
	if s.sealed {
		panic(fmt.Sprintf("ctype: add field %q to sealed struct %s", name, s.name))
	}
	if _, dup := s.index[name]; dup {
		panic(fmt.Sprintf("ctype: duplicate field %q in struct %s", name, s.name))
	}

	fp := t.Footprint()
	align := max(s.align, fp.Align)
	off := alignUp64(uint64(s.end), uint64(fp.Align))
	end := off + uint64(fp.Size)
	if alignUp64(end, uint64(align)) > math.MaxUint32 {
		panic(fmt.Sprintf("ctype: field %q puts struct %s past the address space", name, s.name))
	}
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, FieldInfo{Name: name, Offset: uint32(off), Type: t})
	s.end = uint32(end)
	s.align = align
	return Field[T]{name: name, offset: uint32(off), t: t}
}

func alignUp64(x, a uint64) uint64 {
	if a <= 1 {
		return x
	}
	return (x + a - 1) &^ (a - 1)
}

// Seal freezes the layout and returns s.
func (s *Struct) Seal() *Struct {
	s.sealed = true
	return s
}

func (s *Struct) Sealed() bool { return s.sealed }
func (s *Struct) Name() string { return "struct " + s.name }
func (s *Struct) Kind() Kind   { return KindPrimitive }

// Footprint pads the size to a multiple of the strictest member alignment.
func (s *Struct) Footprint() native.Footprint {
	return native.Footprint{Size: native.AlignUp(s.end, s.align), Align: s.align}
}

func (s *Struct) ValueTypes() []api.ValueType { return nil }

// Fields lists the members in declaration order.
func (s *Struct) Fields() []FieldInfo {
	return append([]FieldInfo(nil), s.fields...)
}

// Field looks up a member by name.
func (s *Struct) Field(name string) (FieldInfo, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldInfo{}, false
	}
	return s.fields[i], true
}

func (s *Struct) check(m *native.Memory, addr native.Addr) error {
	if !s.sealed {
		return fmt.Errorf("%w: %s", ErrUnsealed, s.Name())
	}
	return m.Check(addr, s.Footprint())
}

func (s *Struct) Load(m *native.Memory, addr native.Addr) (Record, error) {
	if err := s.check(m, addr); err != nil {
		return nil, err
	}
	rec := make(Record, len(s.fields))
	for _, f := range s.fields {
		v, err := f.Type.LoadValue(m, addr.Add(int64(f.Offset)))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name(), f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// Store writes every member of v. v must name exactly the struct's fields.
func (s *Struct) Store(m *native.Memory, addr native.Addr, v Record) error {
	if err := s.check(m, addr); err != nil {
		return err
	}
	if err := s.sameFields(v); err != nil {
		return err
	}
	return atomically(m, addr, s.Footprint().Size, func() error {
		for _, f := range s.fields {
			if err := f.Type.StoreValue(m, addr.Add(int64(f.Offset)), v[f.Name]); err != nil {
				return fmt.Errorf("%s.%s: %w", s.Name(), f.Name, err)
			}
		}
		return nil
	})
}

func (s *Struct) sameFields(v Record) error {
	var missing, extra []string
	for _, f := range s.fields {
		if _, ok := v[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	for name := range v {
		if _, ok := s.index[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("%w: %s missing [%s] unknown [%s]", ErrValueType, s.Name(),
		strings.Join(missing, " "), strings.Join(extra, " "))
}

func (s *Struct) Lift(*native.Memory, []uint64) (Record, error)  { return nil, notScalar(s) }
func (s *Struct) Lower(*native.Memory, Record) ([]uint64, error) { return nil, notScalar(s) }

func (f Field[T]) Name() string   { return f.name }
func (f Field[T]) Offset() uint32 { return f.offset }
func (f Field[T]) Type() Type[T]  { return f.t }

// Load reads the member of the struct at base.
func (f Field[T]) Load(m *native.Memory, base native.Addr) (T, error) {
	return f.t.Load(m, base.Add(int64(f.offset)))
}

// Store writes the member of the struct at base.
func (f Field[T]) Store(m *native.Memory, base native.Addr, v T) error {
	return f.t.Store(m, base.Add(int64(f.offset)), v)
}

// At returns a pointer to the member of the struct p points to.
func (f Field[T]) At(p Ptr[Record]) Ptr[T] {
	return PtrAt(p.mem, p.addr.Add(int64(f.offset)), f.t)
}
