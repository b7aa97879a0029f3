package config

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/memview/foreign"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 8080, cfg.Serve.Port)
	require.Equal(t, 15*time.Minute, cfg.SessionTTL)
	require.Equal(t, foreign.MemoryLimit16MB, ParseMemoryLimit(cfg.Memory))
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log-level = "debug"
memory = "64mb"
initial-pages = 4

[serve]
port = 9090
session-ttl = "90s"
files = "/srv/snapshots"

[telemetry]
endpoint = "http://localhost:4318"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "64mb", cfg.Memory)
	require.Equal(t, uint32(4), cfg.InitialPages)
	require.Equal(t, 9090, cfg.Serve.Port)
	require.Equal(t, 90*time.Second, cfg.SessionTTL)
	require.Equal(t, "/srv/snapshots", cfg.Serve.Files)
	require.Equal(t, "http://localhost:4318", cfg.Telemetry.Endpoint)
	require.True(t, cfg.Telemetry.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
log-level = "debug"

[serve]
port = 9090
`)
	t.Setenv("MEMVIEW_LOG_LEVEL", "error")
	t.Setenv("MEMVIEW_SERVE_PORT", "7070")
	t.Setenv("MEMVIEW_OTEL_ENABLED", "false")
	t.Setenv("MEMVIEW_SERVE_FILES", "/tmp/snaps")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "error", cfg.LogLevel)
	require.Equal(t, 7070, cfg.Serve.Port)
	require.False(t, cfg.Telemetry.Enabled)
	require.Equal(t, "/tmp/snaps", cfg.Serve.Files)
}

func TestExitf(t *testing.T) {
	if os.Getenv("CONFIG_EXITF_CHILD") == "1" {
		Exitf("Error: %s", "setup failed")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitf$")
	cmd.Env = append(os.Environ(), "CONFIG_EXITF_CHILD=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode())
	require.Equal(t, "Error: setup failed\n", string(out))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, `memory = [`))
	require.ErrorContains(t, err, "parse memview.toml")

	_, err = Load(writeFile(t, "[serve]\nsession-ttl = \"soon\"\n"))
	require.ErrorContains(t, err, "serve.session-ttl")

	t.Setenv("MEMVIEW_SERVE_PORT", "not-a-port")
	_, err = Load(writeFile(t, ""))
	require.ErrorContains(t, err, "parse env:")
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"1mb", 16},
		{"16MB", 256},
		{"64mb", 1024},
		{"256mb", 4096},
		{"1gb", 16384},
		{"", 0},
		{"lots", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseMemoryLimit(tt.in))
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	log, err := cfg.Logger()
	require.NoError(t, err)
	require.True(t, log.Enabled(t.Context(), slog.LevelDebug))

	cfg.LogLevel = "loud"
	_, err = cfg.Logger()
	require.Error(t, err)
}

func TestRuntimeOptions(t *testing.T) {
	cfg := Default()
	cfg.InitialPages = 3
	cfg.Memory = "1mb"

	rt, err := foreign.New(t.Context(), cfg.RuntimeOptions(slog.Default())...)
	require.NoError(t, err)
	defer rt.Close(t.Context())
	require.Equal(t, uint32(3*65536), rt.Memory().Size())
}
