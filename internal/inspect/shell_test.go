package inspect

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caffeineduck/memview/ctype"
	"github.com/caffeineduck/memview/foreign"
	"github.com/caffeineduck/memview/hostfunc"
	"github.com/stretchr/testify/require"
)

type testShell struct {
	*Shell
	rt  *foreign.Runtime
	out *bytes.Buffer
}

func newTestShell(t *testing.T) *testShell {
	t.Helper()
	rt := foreign.TestRuntime(t)
	out := new(bytes.Buffer)
	s, err := New(context.Background(), rt, out)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return &testShell{Shell: s, rt: rt, out: out}
}

// do runs line and returns what it printed.
func (s *testShell) do(t *testing.T, line string) string {
	t.Helper()
	s.out.Reset()
	require.NoError(t, s.Exec(context.Background(), line))
	return strings.TrimSpace(s.out.String())
}

func (s *testShell) fail(t *testing.T, line string) error {
	t.Helper()
	err := s.Exec(context.Background(), line)
	require.Error(t, err)
	return err
}

func TestSetGet(t *testing.T) {
	s := newTestShell(t)

	tests := []struct {
		typ  string
		set  string
		want string
	}{
		{"i8", "-5", "-5"},
		{"i32", "0x7fffffff", "2147483647"},
		{"i64", "-9000000000", "-9000000000"},
		{"u16", "65535", "65535"},
		{"size", "12", "12"},
		{"f32", "1.5", "1.5"},
		{"f64", "-0.25", "-0.25"},
		{"bool", "true", "true"},
		{"char", "A", "'A'"},
		{"chr", "λ", "'λ'"},
		{"cartesian", "1 -2", "(1-2i)"},
		{"ptr", "0x40", "(char*)0x00000040"},
		{"ptr?", "null", "Absent"},
		{"ptr?", "0x40", "Present((char*)0x00000040)"},
		{"string", `"hi there"`, `"hi there"`},
		{"char[8]", "abc", `"abc"`},
	}
	for _, tt := range tests {
		t.Run(tt.typ+"="+tt.set, func(t *testing.T) {
			addr := s.do(t, "alloc "+tt.typ)
			s.do(t, "set "+addr+" "+tt.typ+" "+tt.set)
			require.Equal(t, tt.want, s.do(t, "get "+addr+" "+tt.typ))
		})
	}
}

func TestCharView(t *testing.T) {
	s := newTestShell(t)

	addr := s.do(t, "alloc i32")
	s.do(t, "set "+addr+" chr X")
	require.Equal(t, "88", s.do(t, "get "+addr+" i32"))
	require.Equal(t, "'X'", s.do(t, "get "+addr+" chr"))

	s.do(t, "set "+addr+" i32 122")
	require.Equal(t, "'z'", s.do(t, "get "+addr+" chr"))
}

func TestPolarAlias(t *testing.T) {
	s := newTestShell(t)
	m := s.rt.Memory()

	addr := s.do(t, "alloc cartesian")
	s.do(t, "set "+addr+" cartesian 1 0")
	require.Equal(t, "polar(r=1, theta=0)", s.do(t, "get "+addr+" polar"))

	s.do(t, "set "+addr+" polar 2.5 1.5707963267948966")
	a, err := parseAddr(addr)
	require.NoError(t, err)
	c, err := ctype.Complex128.Load(m, a)
	require.NoError(t, err)
	require.InDelta(t, 0, real(c), 1e-12)
	require.InDelta(t, 2.5, imag(c), 1e-12)

	p, err := PolarView.Load(m, a)
	require.NoError(t, err)
	require.InDelta(t, 2.5, p.R, 1e-12)
	require.InDelta(t, math.Pi/2, p.Theta, 1e-12)
}

func TestCall(t *testing.T) {
	s := newTestShell(t)

	require.Equal(t, "9", s.do(t, "call add 5 4"))
	require.Equal(t, "20", s.do(t, "call multiply 5 4"))

	add := s.do(t, "call select_op 0")
	require.True(t, strings.HasPrefix(add, "Present(arith.add@"), add)
	mul := s.do(t, "call select_op 1")
	require.True(t, strings.HasPrefix(mul, "Present(arith.multiply@"), mul)
	require.Equal(t, "Absent", s.do(t, "call select_op 2"))

	require.Equal(t, "1", s.do(t, "call is_null null"))
	require.Equal(t, "0", s.do(t, "call is_null add"))
	require.Equal(t, "42", s.do(t, "call apply multiply 6 7"))

	// Host functions run directly or through a trampoline.
	require.Equal(t, "5", s.do(t, "call sub 9 4"))
	require.Zero(t, s.rt.Trampolines())
	require.Equal(t, "5", s.do(t, "call apply sub 9 4"))
	require.Equal(t, "9", s.do(t, "call apply max 9 4"))
	require.Equal(t, 2, s.rt.Trampolines())

	require.Equal(t, "5", s.do(t, `call strlen "hello"`))
	require.Equal(t, "0", s.do(t, `call strcmp "a" "a"`))
	require.Equal(t, "(2+4i)", s.do(t, "call cscale 1 2 2"))

	s.fail(t, "call apply null 1 2")
	require.ErrorIs(t, s.fail(t, "call nope"), ErrUnknownSymbol)
	require.ErrorIs(t, s.fail(t, "call add 1"), ErrUsage)
	require.ErrorIs(t, s.fail(t, "call add 1 2 3"), ErrUsage)
	s.fail(t, "call add one 2")

	require.NoError(t, s.Close(context.Background()))
	require.Zero(t, s.rt.Trampolines())
}

func TestKV(t *testing.T) {
	s := newTestShell(t)

	require.Equal(t, "Absent", s.do(t, `call kv_get "lang"`))
	require.Empty(t, s.do(t, `call kv_set "lang" "go"`))
	require.Equal(t, "1", s.do(t, "call kv_len"))

	got := s.do(t, `call kv_get "lang"`)
	require.True(t, strings.HasPrefix(got, "Present((char*)0x"), got)
	addr := strings.TrimSuffix(strings.TrimPrefix(got, "Present((char*)"), ")")
	require.Equal(t, `"go"`, s.do(t, "get "+addr+" char[3]"))
	s.do(t, "free "+addr)

	require.Equal(t, "1", s.do(t, `call kv_delete "lang"`))
	require.Equal(t, "0", s.do(t, `call kv_delete "lang"`))
	require.Equal(t, "0", s.do(t, "call kv_len"))
}

func TestSharedKV(t *testing.T) {
	kv := hostfunc.NewKVStore()
	open := func() (*Shell, *bytes.Buffer) {
		out := new(bytes.Buffer)
		sh, err := New(context.Background(), foreign.TestRuntime(t), out, WithKV(kv))
		require.NoError(t, err)
		t.Cleanup(func() { sh.Close(context.Background()) })
		return sh, out
	}
	a, _ := open()
	b, out := open()

	require.NoError(t, a.Exec(context.Background(), `call kv_set "owner" "a"`))
	require.NoError(t, b.Exec(context.Background(), "call kv_len"))
	require.Equal(t, "1\n", out.String())
	got, ok := kv.Get("owner")
	require.True(t, ok)
	require.Equal(t, "a", got)
}

func TestStringConcatenation(t *testing.T) {
	s := newTestShell(t)

	buf := s.do(t, "alloc char[64]")
	var last string
	for _, word := range []string{"the ", "quick ", "brown ", "fox ", "etc. ", "etc. "} {
		last = s.do(t, `call strcat `+buf+` "`+word+`"`)
	}
	require.Equal(t, `"the quick brown fox etc. etc. "`, last)
	require.Equal(t, `"the quick brown fox etc. etc. "`, s.do(t, "get "+buf+" char[64]"))
}

func TestComplexMultiply(t *testing.T) {
	s := newTestShell(t)

	var addrs [3]string
	for i := range addrs {
		addrs[i] = s.do(t, "alloc cartesian")
	}
	s.do(t, "set "+addrs[1]+" cartesian 1 2")
	s.do(t, "set "+addrs[2]+" cartesian 3 4")
	require.Empty(t, s.do(t, "call cmul "+strings.Join(addrs[:], " ")))
	require.Equal(t, "(-5+10i)", s.do(t, "get "+addrs[0]+" cartesian"))
}

func TestDumpAndBlocks(t *testing.T) {
	s := newTestShell(t)

	addr := s.do(t, "alloc i32 2")
	s.do(t, "set "+addr+" i32 0x01020304")
	require.Contains(t, s.do(t, "dump "+addr+" 4"), "04 03 02 01")
	require.Contains(t, s.do(t, "blocks"), addr+" 8")

	s.do(t, "free "+addr)
	require.NotContains(t, s.do(t, "blocks"), addr)
	s.fail(t, "free "+addr)
}

func TestSnapshotRestore(t *testing.T) {
	s := newTestShell(t)
	file := filepath.Join(t.TempDir(), "heap.cbor")

	addr := s.do(t, "alloc i64")
	s.do(t, "set "+addr+" i64 1")
	require.Equal(t, "saved 1 blocks", s.do(t, "snapshot "+file))

	s.do(t, "set "+addr+" i64 2")
	require.Equal(t, "restored 1 blocks", s.do(t, "restore "+file))
	require.Equal(t, "1", s.do(t, "get "+addr+" i64"))

	s.do(t, "free "+addr)
	require.ErrorIs(t, s.fail(t, "restore "+file), ErrSnapshotMismatch)
}

func TestSnapshotConfined(t *testing.T) {
	dir := t.TempDir()
	out := new(bytes.Buffer)
	sh, err := New(context.Background(), foreign.TestRuntime(t), out, WithFiles(dir))
	require.NoError(t, err)
	defer sh.Close(context.Background())
	s := &testShell{Shell: sh, out: out}

	addr := s.do(t, "alloc i32")
	s.do(t, "set "+addr+" i32 7")
	require.Equal(t, "saved 1 blocks", s.do(t, "snapshot heap.cbor"))
	require.FileExists(t, filepath.Join(dir, "heap.cbor"))
	require.Equal(t, "restored 1 blocks", s.do(t, "restore heap.cbor"))

	outside := filepath.Join(t.TempDir(), "escape.cbor")
	s.fail(t, "snapshot "+outside)
	s.fail(t, "snapshot ../escape.cbor")
	s.fail(t, "restore /etc/hostname")
	require.NoFileExists(t, outside)
	require.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.cbor"))
}

func TestSnapshotDisabled(t *testing.T) {
	out := new(bytes.Buffer)
	sh, err := New(context.Background(), foreign.TestRuntime(t), out, WithFiles(""))
	require.NoError(t, err)
	defer sh.Close(context.Background())

	file := filepath.Join(t.TempDir(), "heap.cbor")
	require.ErrorIs(t, sh.Exec(context.Background(), "snapshot "+file), ErrNoFiles)
	require.ErrorIs(t, sh.Exec(context.Background(), "restore "+file), ErrNoFiles)
	require.NoFileExists(t, file)
}

func TestAllocTooLarge(t *testing.T) {
	s := newTestShell(t)
	before := len(s.rt.Memory().Blocks())

	require.ErrorIs(t, s.fail(t, "alloc i64 536870912"), ErrTooLarge)
	require.ErrorIs(t, s.fail(t, "alloc cartesian 4294967295"), ErrTooLarge)
	require.Len(t, s.rt.Memory().Blocks(), before)
}

func TestCallStringsFreedPerLine(t *testing.T) {
	s := newTestShell(t)
	m := s.rt.Memory()
	before := len(m.Blocks())

	for range 100 {
		s.do(t, `call kv_set "key" "a value long enough to matter"`)
		require.Len(t, m.Blocks(), before)
	}
	require.Equal(t, "29", s.do(t, `call strlen "a value long enough to matter"`))
	require.Len(t, m.Blocks(), before)

	// A failing line frees its strings too.
	s.fail(t, `call strcat 0x7ffffff0 "lost"`)
	require.Len(t, m.Blocks(), before)

	// Strings stored with set belong to the user.
	slot := s.do(t, "alloc string")
	s.do(t, "set "+slot+` string "kept"`)
	require.Len(t, m.Blocks(), before+2)
	s.do(t, "call kv_len")
	require.Equal(t, `"kept"`, s.do(t, "get "+slot+" string"))

	p := s.do(t, "get "+slot+" ptr")
	s.do(t, "free "+strings.TrimPrefix(p, "(char*)"))
	require.Len(t, m.Blocks(), before+1)
}

func TestListings(t *testing.T) {
	s := newTestShell(t)

	help := s.do(t, "help")
	for _, name := range []string{"alloc", "call", "snapshot", "restore"} {
		require.Contains(t, help, name)
	}

	types := s.do(t, "types")
	require.Contains(t, types, "polar")
	require.Contains(t, types, "int32_t (*)(int32_t, int32_t)?")
	require.Contains(t, types, "view")

	funcs := s.do(t, "funcs")
	require.Contains(t, funcs, "select_op")
	require.Contains(t, funcs, "sub")
	require.Contains(t, funcs, "kv_len     size_t (*)(void)")
}

func TestErrors(t *testing.T) {
	s := newTestShell(t)

	require.Empty(t, s.do(t, "   "))
	require.Empty(t, s.do(t, "# comment"))
	require.ErrorIs(t, s.fail(t, "poke 1"), ErrUnknownCommand)
	require.ErrorIs(t, s.fail(t, "get 0x10"), ErrUsage)
	require.ErrorIs(t, s.fail(t, "alloc nothing"), ErrUnknownType)
	require.ErrorIs(t, s.fail(t, "alloc char[0]"), ErrUnknownType)
	require.ErrorIs(t, s.fail(t, `set 0x10 string "open`), ErrSyntax)

	addr := s.do(t, "alloc i32")
	require.ErrorIs(t, s.fail(t, "set "+addr+" cartesian 1"), ErrUsage)
	var vce *ctype.ViewConversionError
	require.ErrorAs(t, s.fail(t, "set "+addr+" char[2] ab"), &vce)
	s.fail(t, "set "+addr+" i8 300")
	s.fail(t, "get 0x7fffffff i32")
}

func TestRunScript(t *testing.T) {
	s := newTestShell(t)

	script := strings.NewReader("# sums\ncall add 1 2\n\ncall multiply 2 3\n")
	require.NoError(t, s.Run(context.Background(), script))
	require.Equal(t, "3\n6\n", s.out.String())

	err := s.Run(context.Background(), strings.NewReader("call add 1 2\nbogus\ncall add 3 4\n"))
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.ErrorContains(t, err, "line 2")
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"get 0x10 i32", []string{"get", "0x10", "i32"}},
		{"  set\t1  i32 2 ", []string{"set", "1", "i32", "2"}},
		{`call strlen "a b"`, []string{"call", "strlen", "a b"}},
		{`set 1 string "say \"hi\"\n"`, []string{"set", "1", "string", "say \"hi\"\n"}},
		{`x ""`, []string{"x", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := split(tt.line)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := split(`say "unterminated`)
	require.ErrorIs(t, err, ErrSyntax)
}
