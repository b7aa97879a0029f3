package ctype

import (
	"github.com/caffeineduck/memview/native"
	"github.com/tetratelabs/wazero/api"
)

// scalar is a primitive occupying one call stack slot.
type scalar[T any] struct {
	boxed[T]
	name  string
	fp    native.Footprint
	vt    api.ValueType
	load  func(*native.Memory, native.Addr) (T, error)
	store func(*native.Memory, native.Addr, T) error
	lift  func(uint64) T
	lower func(T) uint64
}

func newScalar[T any](s *scalar[T]) Type[T] {
	s.boxed = boxed[T]{s}
	return s
}

func (s *scalar[T]) Name() string                { return s.name }
func (s *scalar[T]) Footprint() native.Footprint { return s.fp }
func (s *scalar[T]) Kind() Kind                  { return KindPrimitive }
func (s *scalar[T]) ValueTypes() []api.ValueType { return []api.ValueType{s.vt} }

func (s *scalar[T]) Load(m *native.Memory, addr native.Addr) (T, error) {
	if err := m.Check(addr, s.fp); err != nil {
		var zero T
		return zero, err
	}
	return s.load(m, addr)
}

func (s *scalar[T]) Store(m *native.Memory, addr native.Addr, v T) error {
	if err := m.Check(addr, s.fp); err != nil {
		return err
	}
	return s.store(m, addr, v)
}

func (s *scalar[T]) Lift(_ *native.Memory, stack []uint64) (T, error) {
	if err := needStack(s, stack); err != nil {
		var zero T
		return zero, err
	}
	return s.lift(stack[0]), nil
}

func (s *scalar[T]) Lower(_ *native.Memory, v T) ([]uint64, error) {
	return []uint64{s.lower(v)}, nil
}

func (s *scalar[T]) String() string { return s.name }

var (
	Int8 = newScalar(&scalar[int8]{
		name: "int8_t", fp: native.Footprint{Size: 1, Align: 1}, vt: api.ValueTypeI32,
		load: func(m *native.Memory, a native.Addr) (int8, error) {
			v, err := m.ReadUint8(a)
			return int8(v), err
		},
		store: func(m *native.Memory, a native.Addr, v int8) error { return m.WriteUint8(a, uint8(v)) },
		lift:  func(x uint64) int8 { return int8(api.DecodeI32(x)) },
		lower: func(v int8) uint64 { return api.EncodeI32(int32(v)) },
	})

	Int16 = newScalar(&scalar[int16]{
		name: "int16_t", fp: native.Footprint{Size: 2, Align: 2}, vt: api.ValueTypeI32,
		load: func(m *native.Memory, a native.Addr) (int16, error) {
			v, err := m.ReadUint16(a)
			return int16(v), err
		},
		store: func(m *native.Memory, a native.Addr, v int16) error { return m.WriteUint16(a, uint16(v)) },
		lift:  func(x uint64) int16 { return int16(api.DecodeI32(x)) },
		lower: func(v int16) uint64 { return api.EncodeI32(int32(v)) },
	})

	Int32 = newScalar(&scalar[int32]{
		name: "int32_t", fp: native.Footprint{Size: 4, Align: 4}, vt: api.ValueTypeI32,
		load: func(m *native.Memory, a native.Addr) (int32, error) {
			v, err := m.ReadUint32(a)
			return int32(v), err
		},
		store: func(m *native.Memory, a native.Addr, v int32) error { return m.WriteUint32(a, uint32(v)) },
		lift:  api.DecodeI32,
		lower: api.EncodeI32,
	})

	Int64 = newScalar(&scalar[int64]{
		name: "int64_t", fp: native.Footprint{Size: 8, Align: 8}, vt: api.ValueTypeI64,
		load: func(m *native.Memory, a native.Addr) (int64, error) {
			v, err := m.ReadUint64(a)
			return int64(v), err
		},
		store: func(m *native.Memory, a native.Addr, v int64) error { return m.WriteUint64(a, uint64(v)) },
		lift:  func(x uint64) int64 { return int64(x) },
		lower: api.EncodeI64,
	})

	Uint8 = newScalar(&scalar[uint8]{
		name:  "uint8_t", fp: native.Footprint{Size: 1, Align: 1}, vt: api.ValueTypeI32,
		load:  (*native.Memory).ReadUint8,
		store: (*native.Memory).WriteUint8,
		lift:  func(x uint64) uint8 { return uint8(api.DecodeU32(x)) },
		lower: func(v uint8) uint64 { return api.EncodeU32(uint32(v)) },
	})

	Uint16 = newScalar(&scalar[uint16]{
		name:  "uint16_t", fp: native.Footprint{Size: 2, Align: 2}, vt: api.ValueTypeI32,
		load:  (*native.Memory).ReadUint16,
		store: (*native.Memory).WriteUint16,
		lift:  func(x uint64) uint16 { return uint16(api.DecodeU32(x)) },
		lower: func(v uint16) uint64 { return api.EncodeU32(uint32(v)) },
	})

	Uint32 = newScalar(&scalar[uint32]{
		name:  "uint32_t", fp: native.Footprint{Size: 4, Align: 4}, vt: api.ValueTypeI32,
		load:  (*native.Memory).ReadUint32,
		store: (*native.Memory).WriteUint32,
		lift:  api.DecodeU32,
		lower: api.EncodeU32,
	})

	Uint64 = newScalar(&scalar[uint64]{
		name:  "uint64_t", fp: native.Footprint{Size: 8, Align: 8}, vt: api.ValueTypeI64,
		load:  (*native.Memory).ReadUint64,
		store: (*native.Memory).WriteUint64,
		lift:  func(x uint64) uint64 { return x },
		lower: func(v uint64) uint64 { return v },
	})

	// Size is size_t on wasm32.
	Size = newScalar(&scalar[uint32]{
		name:  "size_t", fp: native.Footprint{Size: 4, Align: 4}, vt: api.ValueTypeI32,
		load:  (*native.Memory).ReadUint32,
		store: (*native.Memory).WriteUint32,
		lift:  api.DecodeU32,
		lower: api.EncodeU32,
	})

	Char = newScalar(&scalar[byte]{
		name:  "char", fp: native.Footprint{Size: 1, Align: 1}, vt: api.ValueTypeI32,
		load:  (*native.Memory).ReadUint8,
		store: (*native.Memory).WriteUint8,
		lift:  func(x uint64) byte { return byte(api.DecodeU32(x)) },
		lower: func(v byte) uint64 { return api.EncodeU32(uint32(v)) },
	})

	// Bool reads any non-zero byte as true and writes 0 or 1.
	Bool = newScalar(&scalar[bool]{
		name: "bool", fp: native.Footprint{Size: 1, Align: 1}, vt: api.ValueTypeI32,
		load: func(m *native.Memory, a native.Addr) (bool, error) {
			v, err := m.ReadUint8(a)
			return v != 0, err
		},
		store: func(m *native.Memory, a native.Addr, v bool) error { return m.WriteUint8(a, b2u(v)) },
		lift:  func(x uint64) bool { return api.DecodeU32(x) != 0 },
		lower: func(v bool) uint64 { return uint64(b2u(v)) },
	})

	Float32 = newScalar(&scalar[float32]{
		name:  "float", fp: native.Footprint{Size: 4, Align: 4}, vt: api.ValueTypeF32,
		load:  (*native.Memory).ReadFloat32,
		store: (*native.Memory).WriteFloat32,
		lift:  api.DecodeF32,
		lower: api.EncodeF32,
	})

	Float64 = newScalar(&scalar[float64]{
		name:  "double", fp: native.Footprint{Size: 8, Align: 8}, vt: api.ValueTypeF64,
		load:  (*native.Memory).ReadFloat64,
		store: (*native.Memory).WriteFloat64,
		lift:  api.DecodeF64,
		lower: api.EncodeF64,
	})
)

func b2u(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// Complex128 is C's double _Complex: two doubles, real part first. It is
// passed by value as two f64 stack slots.
var Complex128 Type[complex128] = newComplex()

type complexType struct {
	boxed[complex128]
}

func newComplex() *complexType {
	c := &complexType{}
	c.boxed = boxed[complex128]{c}
	return c
}

func (*complexType) Name() string                { return "double _Complex" }
func (*complexType) Footprint() native.Footprint { return native.Footprint{Size: 16, Align: 8} }
func (*complexType) Kind() Kind                  { return KindPrimitive }

func (*complexType) ValueTypes() []api.ValueType {
	return []api.ValueType{api.ValueTypeF64, api.ValueTypeF64}
}

func (c *complexType) Load(m *native.Memory, addr native.Addr) (complex128, error) {
	if err := m.Check(addr, c.Footprint()); err != nil {
		return 0, err
	}
	re, err := m.ReadFloat64(addr)
	if err != nil {
		return 0, err
	}
	im, err := m.ReadFloat64(addr.Add(8))
	if err != nil {
		return 0, err
	}
	return complex(re, im), nil
}

func (c *complexType) Store(m *native.Memory, addr native.Addr, v complex128) error {
	if err := m.Check(addr, c.Footprint()); err != nil {
		return err
	}
	if err := m.WriteFloat64(addr, real(v)); err != nil {
		return err
	}
	return m.WriteFloat64(addr.Add(8), imag(v))
}

func (c *complexType) Lift(_ *native.Memory, stack []uint64) (complex128, error) {
	if err := needStack(c, stack); err != nil {
		return 0, err
	}
	return complex(api.DecodeF64(stack[0]), api.DecodeF64(stack[1])), nil
}

func (c *complexType) Lower(_ *native.Memory, v complex128) ([]uint64, error) {
	return []uint64{api.EncodeF64(real(v)), api.EncodeF64(imag(v))}, nil
}
