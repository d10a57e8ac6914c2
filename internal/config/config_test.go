package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PYBOT_CONFIG", "PYBOT_ADDR", "PYBOT_DB_PATH", "PYBOT_LOG_FILE", "PYBOT_LOG_LEVEL",
		"PYBOT_PYTHON", "PYBOT_EXEC_TIMEOUT", "PYBOT_EXEC_MAX_OUTPUT", "PYBOT_EXEC_DISABLED",
		"PYBOT_READ_TIMEOUT", "PYBOT_WRITE_TIMEOUT", "PYBOT_EXEC_MAX_MEMORY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, "pybot_conversations.db", cfg.DBPath)
	assert.Equal(t, int64(65536), cfg.ExecMaxOutput)
	assert.Equal(t, 5*time.Second, cfg.ExecTimeout)
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PYBOT_ADDR", "127.0.0.1:9000")
	t.Setenv("PYBOT_LOG_LEVEL", "debug")
	t.Setenv("PYBOT_EXEC_TIMEOUT", "2s")
	t.Setenv("PYBOT_EXEC_MAX_OUTPUT", "1MiB")
	t.Setenv("PYBOT_EXEC_MAX_MEMORY", "128MiB")
	t.Setenv("PYBOT_EXEC_DISABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ExecTimeout)
	assert.Equal(t, int64(1<<20), cfg.ExecMaxOutput)
	assert.Equal(t, int64(128<<20), cfg.ExecMaxMemory)
	assert.True(t, cfg.ExecDisabled)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
}

func TestLoadEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PYBOT_EXEC_MAX_OUTPUT", "lots"},
		{"PYBOT_EXEC_MAX_OUTPUT", "0"},
		{"PYBOT_EXEC_MAX_MEMORY", "2GiB"},
		{"PYBOT_EXEC_TIMEOUT", "soon"},
		{"PYBOT_WRITE_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected %s=%q to be rejected", tt.key, tt.value)
			}
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

// A bad size is an error whether it comes from the file or the environment.
func TestMaxOutputErrorsMatchAcrossSources(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pybot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exec:\n  max_output: lots\n"), 0o644))
	_, fileErr := LoadFile(path)
	require.Error(t, fileErr)
	assert.Contains(t, fileErr.Error(), "exec.max_output")

	t.Setenv("PYBOT_EXEC_MAX_OUTPUT", "lots")
	_, envErr := LoadFile("")
	require.Error(t, envErr)
	assert.Contains(t, envErr.Error(), "PYBOT_EXEC_MAX_OUTPUT")
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pybot.yaml")
	data := `
addr: ":7000"
db_path: /var/lib/pybot/pybot.db
log_level: warn
exec:
  python: /usr/bin/python3.12
  timeout: 3s
  max_output: 32KiB
  max_memory: 64MiB
  disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("PYBOT_CONFIG", path)
	t.Setenv("PYBOT_DB_PATH", "override.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "override.db", cfg.DBPath)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "/usr/bin/python3.12", cfg.Python)
	assert.Equal(t, 3*time.Second, cfg.ExecTimeout)
	assert.Equal(t, int64(32<<10), cfg.ExecMaxOutput)
	assert.Equal(t, int64(64<<20), cfg.ExecMaxMemory)
	assert.True(t, cfg.ExecDisabled)
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("exec:\n  timeout: soon\n"), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec.timeout")
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestParseSize(t *testing.T) {
	n, err := parseSize("64KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(65536), n)

	_, err = parseSize("0")
	assert.Error(t, err)
	_, err = parseSize("lots")
	assert.Error(t, err)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("seeded", "patterns", 174)

	assert.Contains(t, stderr.String(), "msg=seeded")
	assert.NotContains(t, stderr.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &rec))
	assert.Equal(t, "seeded", rec["msg"])
	assert.Equal(t, float64(174), rec["patterns"])
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pybot.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"started"`))
}
