package ctype_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/native"
	"github.com/stretchr/testify/require"
)

type polarCoord struct {
	Norm, Arg float64
}

var polar = ctype.View(ctype.Complex128,
	func(c complex128) polarCoord {
		r, theta := cmplx.Polar(c)
		return polarCoord{Norm: r, Arg: theta}
	},
	func(p polarCoord) complex128 { return cmplx.Rect(p.Norm, p.Arg) },
	ctype.Named("polar"),
)

func TestPolarCartesianAliasing(t *testing.T) {
	t.Parallel()

	m := native.TestMemory(t)
	addr := alloc(t, m, ctype.Complex128)

	cart, err := ctype.Bind(m, addr, ctype.Complex128)
	require.NoError(t, err)
	pol, err := ctype.Rebind(cart, polar)
	require.NoError(t, err)
	require.Equal(t, cart.Addr(), pol.Addr())

	require.NoError(t, cart.Set(complex(1, 0)))
	p, err := pol.Get()
	require.NoError(t, err)
	require.InDelta(t, 1.0, p.Norm, 1e-12)
	require.InDelta(t, 0.0, p.Arg, 1e-12)

	require.NoError(t, pol.Set(polarCoord{Norm: 2.5, Arg: math.Pi / 2}))
	c, err := cart.Get()
	require.NoError(t, err)
	require.InDelta(t, 0.0, real(c), 1e-12)
	require.InDelta(t, 2.5, imag(c), 1e-12)

	// The doubles are laid out real part first.
	im, err := m.ReadFloat64(addr.Add(8))
	require.NoError(t, err)
	require.InDelta(t, 2.5, im, 1e-12)
}

func TestRebindFootprintMismatch(t *testing.T) {
	t.Parallel()

	m := native.TestMemory(t)
	addr := alloc(t, m, ctype.Complex128)
	cart, err := ctype.Bind(m, addr, ctype.Complex128)
	require.NoError(t, err)

	_, err = ctype.Rebind(cart, ctype.Float64)
	var ferr *ctype.FootprintMismatchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, native.Footprint{Size: 16, Align: 8}, ferr.Have)
	require.Equal(t, native.Footprint{Size: 8, Align: 8}, ferr.Want)

	// Same size, different alignment.
	_, err = ctype.Rebind(cart, ctype.ArrayOf(ctype.Char, 16))
	require.ErrorAs(t, err, &ferr)

	_, err = ctype.Rebind(cart, ctype.ArrayOf(ctype.Float64, 2))
	require.NoError(t, err)
}

func TestCast(t *testing.T) {
	t.Parallel()

	m := native.TestMemory(t)
	addr := alloc(t, m, ctype.Float32)
	require.NoError(t, ctype.Float32.Store(m, addr, 1.0))

	p := ctype.PtrAt(m, addr, ctype.Float32)
	bits, err := ctype.Cast(p, ctype.Uint32)
	require.NoError(t, err)
	v, err := bits.Get()
	require.NoError(t, err)
	require.Equal(t, math.Float32bits(1.0), v)

	_, err = ctype.Cast(p, ctype.Int64)
	var ferr *ctype.FootprintMismatchError
	require.ErrorAs(t, err, &ferr)
}

func TestBindChecksAddress(t *testing.T) {
	t.Parallel()

	m := native.TestMemory(t)
	_, err := ctype.Bind(m, native.Null, ctype.Int32)
	require.ErrorIs(t, err, native.ErrNullAddress)

	_, err = ctype.Bind(m, 18, ctype.Int32)
	require.ErrorIs(t, err, native.ErrMisaligned)

	_, err = ctype.Bind(m, native.Addr(m.Size()), ctype.Int32)
	require.ErrorIs(t, err, native.ErrOutOfBounds)
}
