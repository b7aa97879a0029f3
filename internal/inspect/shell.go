// Package inspect is a line oriented shell for poking at foreign memory
// through typed views and calling the bundled native libraries.
package inspect

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/caffeineduck/memview/foreign"
	"github.com/caffeineduck/memview/hostfunc"
	"github.com/caffeineduck/memview/native"
	"go.uber.org/multierr"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownType    = errors.New("unknown type")
	ErrUnknownSymbol  = errors.New("unknown function")
	ErrUsage          = errors.New("usage")
	ErrSyntax         = errors.New("syntax error")
	ErrTooLarge       = errors.New("allocation too large")
)

// Shell executes inspector commands against one runtime.
type Shell struct {
	rt    *foreign.Runtime
	mem   *native.Memory
	arena *native.Arena
	out   io.Writer
	log   *slog.Logger
	types map[string]*typeInfo
	funcs map[string]*callable
	hosts []*foreign.Func
	files files

	// keep makes string values outlive the current command line.
	keep bool
}

// Option configures a Shell.
type Option func(*shellConfig)

type shellConfig struct {
	logger *slog.Logger
	kv     *hostfunc.KVStore
	files  files
}

// WithLogger sets the logger commands are logged to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *shellConfig) {
		c.logger = l
	}
}

// WithKV sets the store behind the kv library. Shells given the same store
// share its keys.
func WithKV(kv *hostfunc.KVStore) Option {
	return func(c *shellConfig) {
		c.kv = kv
	}
}

// WithFiles confines snapshot and restore to the directory dir. An empty dir
// turns them off. Without this option they use any path.
func WithFiles(dir string) Option {
	return func(c *shellConfig) {
		if dir == "" {
			c.files = noFiles{}
			return
		}
		c.files = rootFiles(dir)
	}
}

// New returns a shell over rt writing to out. The libc, arith and kv
// libraries are opened unless rt already has them.
func New(ctx context.Context, rt *foreign.Runtime, out io.Writer, opts ...Option) (*Shell, error) {
	var cfg shellConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.kv == nil {
		cfg.kv = hostfunc.NewKVStore()
	}
	if cfg.files == nil {
		cfg.files = hostFiles{}
	}

	for _, lib := range []*hostfunc.Library{hostfunc.Libc(), hostfunc.Arith(), cfg.kv.Library()} {
		if err := rt.Open(ctx, lib); err != nil && !errors.Is(err, foreign.ErrLibraryOpen) {
			return nil, err
		}
	}

	s := &Shell{
		rt:    rt,
		mem:   rt.Memory(),
		arena: rt.Memory().NewArena(),
		out:   out,
		log:   cfg.logger,
		funcs: make(map[string]*callable),
		files: cfg.files,
	}
	s.types = s.builtinTypes()
	if err := s.resolveSymbols(); err != nil {
		return nil, err
	}
	if err := s.registerHostFuncs(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the trampolines of the shell's host functions. It does not
// close the runtime.
func (s *Shell) Close(ctx context.Context) error {
	err := s.arena.Release()
	for _, fn := range s.hosts {
		err = multierr.Append(err, fn.Release(ctx))
	}
	return err
}

type command struct {
	usage string
	help  string
	args  int
	run   func(s *Shell, ctx context.Context, args []string) error

	// keep is set for commands whose string values are stored in memory.
	// Their copies are plain allocations the user frees.
	keep bool
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {usage: "help", help: "list commands", run: (*Shell).help},
		"types":    {usage: "types", help: "list types with their footprints", run: (*Shell).listTypes},
		"alloc":    {usage: "alloc <type> [count]", help: "allocate zeroed storage", args: 1, run: (*Shell).alloc},
		"free":     {usage: "free <addr>", help: "free an allocation", args: 1, run: (*Shell).free},
		"set":      {usage: "set <addr> <type> <value..>", help: "store a value", args: 3, run: (*Shell).set, keep: true},
		"get":      {usage: "get <addr> <type>", help: "load a value", args: 2, run: (*Shell).get},
		"dump":     {usage: "dump <addr> <len>", help: "hex dump raw bytes", args: 2, run: (*Shell).dump},
		"call":     {usage: "call <function> <arg..>", help: "call a function", args: 1, run: (*Shell).call},
		"funcs":    {usage: "funcs", help: "list functions and signatures", run: (*Shell).listFuncs},
		"blocks":   {usage: "blocks", help: "list live allocations", run: (*Shell).blocks},
		"snapshot": {usage: "snapshot <file>", help: "save live allocations", args: 1, run: (*Shell).snapshot},
		"restore":  {usage: "restore <file>", help: "restore saved allocations", args: 1, run: (*Shell).restore},
	}
}

// Exec runs one command line. Blank lines and lines starting with # are
// ignored. Strings passed to native calls are freed when the line is done.
func (s *Shell) Exec(ctx context.Context, line string) (err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	words, err := split(line)
	if err != nil {
		return err
	}

	cmd, ok := commands[words[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, words[0])
	}
	if len(words)-1 < cmd.args {
		return fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}

	s.log.Debug("exec", "command", words[0], "args", len(words)-1)
	s.keep = cmd.keep
	defer func() {
		s.keep = false
		err = multierr.Append(err, s.arena.Release())
	}()
	return cmd.run(s, ctx, words[1:])
}

// lineStrings allocates the C strings of the running command.
type lineStrings struct{ s *Shell }

func (l lineStrings) Memory() *native.Memory { return l.s.mem }

func (l lineStrings) CString(str string) (native.Addr, error) {
	if l.s.keep {
		return l.s.mem.CString(str)
	}
	return l.s.arena.CString(str)
}

// Run executes every line of r and stops at the first failing one.
func (s *Shell) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if err := s.Exec(ctx, sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// Commands returns the command names in order.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Shell) help(context.Context, []string) error {
	for _, name := range Commands() {
		s.printf("  %-28s %s\n", commands[name].usage, commands[name].help)
	}
	return nil
}

func (s *Shell) listTypes(context.Context, []string) error {
	for _, name := range s.typeNames() {
		t := s.types[name]
		fp := t.desc.Footprint()
		s.printf("  %-11s %-32s size=%-3d align=%-2d %s\n", name, t.desc.Name(), fp.Size, fp.Align, t.desc.Kind())
	}
	return nil
}

func (s *Shell) listFuncs(context.Context, []string) error {
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.printf("  %-10s %s\n", name, s.funcs[name].fn.Signature())
	}
	return nil
}

func (s *Shell) alloc(_ context.Context, args []string) error {
	t, err := s.typeOf(args[0])
	if err != nil {
		return err
	}
	count := uint64(1)
	if len(args) > 1 {
		if count, err = strconv.ParseUint(args[1], 10, 32); err != nil || count == 0 {
			return fmt.Errorf("%w: alloc <type> [count]", ErrUsage)
		}
	}
	fp := t.desc.Footprint()
	size := uint64(fp.Size) * count
	if size > math.MaxUint32 {
		return fmt.Errorf("%w: %d x %s is %d bytes", ErrTooLarge, count, t.name, size)
	}
	addr, err := s.mem.Alloc(uint32(size), fp.Align)
	if err != nil {
		return err
	}
	s.printf("%s\n", addr)
	return nil
}

func (s *Shell) free(_ context.Context, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return s.mem.Free(addr)
}

func (s *Shell) set(_ context.Context, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	t, err := s.typeOf(args[1])
	if err != nil {
		return err
	}
	vals := args[2:]
	if len(vals) != t.arity {
		return fmt.Errorf("%w: %s takes %d value(s)", ErrUsage, t.name, t.arity)
	}
	v, err := t.parse(s, vals)
	if err != nil {
		return fmt.Errorf("parse %s: %w", t.name, err)
	}
	return t.desc.StoreValue(s.mem, addr, v)
}

func (s *Shell) get(_ context.Context, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	t, err := s.typeOf(args[1])
	if err != nil {
		return err
	}
	v, err := t.desc.LoadValue(s.mem, addr)
	if err != nil {
		return err
	}
	s.printf("%s\n", t.show(v))
	return nil
}

func (s *Shell) dump(_ context.Context, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: dump <addr> <len>", ErrUsage)
	}
	b, err := s.mem.Read(addr, uint32(n))
	if err != nil {
		return err
	}
	s.printf("%s:\n%s", addr, hex.Dump(b))
	return nil
}

func (s *Shell) call(ctx context.Context, args []string) error {
	c, ok := s.funcs[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, args[0])
	}

	words := args[1:]
	var vals []any
	for _, p := range c.params {
		if len(words) < p.arity {
			return fmt.Errorf("%w: %s is %s", ErrUsage, args[0], c.fn.Signature())
		}
		v, err := p.parse(s, words[:p.arity])
		if err != nil {
			return fmt.Errorf("parse %s: %w", p.name, err)
		}
		vals = append(vals, v)
		words = words[p.arity:]
	}
	if len(words) > 0 {
		return fmt.Errorf("%w: %s is %s", ErrUsage, args[0], c.fn.Signature())
	}

	res, err := c.fn.Call(ctx, vals...)
	if err != nil {
		return err
	}
	if c.result != nil {
		s.printf("%s\n", c.result.show(res))
	}
	return nil
}

func (s *Shell) blocks(context.Context, []string) error {
	for _, b := range s.mem.Blocks() {
		s.printf("  %s %d\n", b.Addr, b.Size)
	}
	return nil
}

// split breaks a command line into words. Double quoted words use Go
// string syntax.
func split(line string) ([]string, error) {
	var words []string
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("%w: unterminated string", ErrSyntax)
			}
			w, err := strconv.Unquote(line[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrSyntax, line[i:j+1])
			}
			words = append(words, w)
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			words = append(words, line[i:j])
			i = j
		}
	}
	return words, nil
}
