package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PYBOT_CONFIG", "PYBOT_DB_PATH", "PYBOT_LOG_FILE", "PYBOT_ADDR", "PYBOT_PYTHON"} {
		t.Setenv(k, "")
	}
	t.Setenv("PYBOT_LOG_LEVEL", "ERROR")
	t.Setenv("PYBOT_EXEC_DISABLED", "true")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskGreeting(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "", "ask", "--db", memoryDB, "Hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Hi there! I'm PyBot")
	assert.Contains(t, out, "category: greeting, confidence: 1.00, style: balanced")
}

func TestAskStyle(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "", "ask", "--db", memoryDB, "--style", "concise", "zzzz", "qqqq")
	require.NoError(t, err)
	assert.Contains(t, out, "category: default")
	assert.Contains(t, out, "style: concise")
}

func TestTrainStatsHistory(t *testing.T) {
	quietEnv(t)
	db := filepath.Join(t.TempDir(), "pybot.db")

	out, err := run(t, "", "train", "--db", db, "walrus operator", "Use := inside expressions.")
	require.NoError(t, err)
	assert.Contains(t, out, "Training pattern added successfully")

	out, err = run(t, "", "ask", "--db", db, "walrus operator")
	require.NoError(t, err)
	assert.Contains(t, out, "Use := inside expressions.")
	assert.Contains(t, out, "category: custom")

	out, err = run(t, "", "stats", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "conversations:    1")
	assert.Contains(t, out, "trained patterns: 1")
	assert.Contains(t, out, "custom")

	out, err = run(t, "", "history", "--db", db, "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "> walrus operator")
}

func TestTrainValidation(t *testing.T) {
	quietEnv(t)
	_, err := run(t, "", "train", "--db", memoryDB, "  ", "response")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern and response are required")
}

func TestSeedCustomCorpus(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(corpus, []byte(`patterns:
  - pattern: tuple
    category: tuples
    response: Tuples are immutable sequences.
  - pattern: set
    response: Sets hold unique items.
`), 0o644))
	db := filepath.Join(dir, "pybot.db")

	out, err := run(t, "", "seed", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded")

	out, err = run(t, "", "seed", "--db", db, "--corpus", corpus)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 patterns")

	out, err = run(t, "", "stats", "--db", db, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_patterns": 2`)
	assert.Contains(t, out, `"general": 1`)
}

func TestCheckStdin(t *testing.T) {
	quietEnv(t)

	out, err := run(t, "def f(:\n", "check")
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "❌ **Code Syntax Check: FAILED**")
	assert.Contains(t, out, "syntax check failed")

	out, err = run(t, "print(sum([1, 2, 3]))\n", "check", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "✅ **Code Syntax Check: PASSED**")
	assert.Contains(t, out, "SKIPPED")
}

func TestCheckFile(t *testing.T) {
	quietEnv(t)
	path := filepath.Join(t.TempDir(), "snippet.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\nif x == 1\n    print(x)\n"), 0o644))

	out, err := run(t, "", "check", path)
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "colon")

	_, err = run(t, "", "check", filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)
}

func TestCheckMessageWithoutCode(t *testing.T) {
	quietEnv(t)
	out, err := run(t, "what is a decorator?", "check", "--message")
	require.NoError(t, err)
	assert.Contains(t, out, "no Python code found")
}

func TestServeStopsOnCancel(t *testing.T) {
	quietEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"serve", "--db", memoryDB, "--addr", "127.0.0.1:0"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n  b"))
	long := strings.Repeat("x", 100)
	p := preview(long)
	assert.Len(t, []rune(p), historyPreview)
	assert.True(t, strings.HasSuffix(p, "..."))
}
