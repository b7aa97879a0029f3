package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/caffeineduck/memview/foreign"
	"github.com/caffeineduck/memview/hostfunc"
	"github.com/caffeineduck/memview/internal/config"
	"github.com/caffeineduck/memview/internal/inspect"
	"github.com/caffeineduck/memview/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var rootCmd = &cobra.Command{
	Use:   "memview [file]",
	Short: "Typed views over native memory",
	Long: `memview - Inspect native memory through typed views.

Allocate storage, read and write it as C types, and call functions of the
bundled libc and arith libraries, including through nullable function
pointers. Commands come from files, inline strings, stdin, an interactive
repl or an HTTP server.`,
	Args:               cobra.MaximumNArgs(1),
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
	RunE:               runRun, // Default to run command behavior
}

var (
	configPath string
	logLevel   string
	memory     string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		config.Exitf("Error: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&memory, "memory", "", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")

	addRunFlags(rootCmd)
}

// app is the state shared by every command once flags are parsed. Sessions
// of one process share the kv store.
var app struct {
	cfg      config.Config
	log      *slog.Logger
	kv       *hostfunc.KVStore
	shutdown func(context.Context) error
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if memory != "" {
		cfg.Memory = memory
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(cmd.Context(), "memview", cfg.Telemetry)
	if err != nil {
		return err
	}

	app.cfg = cfg
	app.log = log
	app.kv = hostfunc.NewKVStore()
	app.shutdown = shutdown
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	if app.shutdown == nil {
		return nil
	}
	return app.shutdown(cmd.Context())
}

// session is a runtime with an inspector shell on top.
type session struct {
	rt *foreign.Runtime
	sh *inspect.Shell
}

func openSession(ctx context.Context, out io.Writer, opts ...inspect.Option) (*session, error) {
	rt, err := foreign.New(ctx, app.cfg.RuntimeOptions(app.log)...)
	if err != nil {
		return nil, err
	}
	opts = append([]inspect.Option{inspect.WithLogger(app.log), inspect.WithKV(app.kv)}, opts...)
	sh, err := inspect.New(ctx, rt, out, opts...)
	if err != nil {
		return nil, multierr.Append(err, rt.Close(ctx))
	}
	return &session{rt: rt, sh: sh}, nil
}

func (s *session) Close(ctx context.Context) error {
	return multierr.Append(s.sh.Close(ctx), s.rt.Close(ctx))
}
