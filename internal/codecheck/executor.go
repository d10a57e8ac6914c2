package codecheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInterpreterUnavailable is returned when no Python interpreter can be found.
	ErrInterpreterUnavailable = errors.New("python interpreter unavailable")
	// ErrExecutionDisabled is returned by Isolation when execution is switched off.
	ErrExecutionDisabled = errors.New("code execution disabled")
	// ErrIsolationUnavailable is returned when the host cannot confine a child process.
	ErrIsolationUnavailable = errors.New("isolated execution unavailable")
)

// restricted snippets are refused before anything is started.
var restricted = []string{"import os", "import sys", "import subprocess", "exec", "eval", "open", "__import__"}

// allowedBuiltins is everything user code can reach besides exception classes.
var allowedBuiltins = []string{
	"print", "len", "str", "int", "float", "list", "dict", "tuple", "set", "range",
	"enumerate", "zip", "sum", "max", "min", "abs", "round", "sorted", "reversed",
}

var errorSuggestions = map[string]string{
	"SyntaxError":       "Syntax error - check for missing colons, parentheses, or quotes",
	"IndentationError":  "Indentation error - Python uses consistent indentation (4 spaces recommended)",
	"NameError":         "Variable or function name not defined - check spelling and scope",
	"TypeError":         "Type error - incompatible data types or wrong number of arguments",
	"ValueError":        "Value error - correct type but inappropriate value",
	"IndexError":        "Index out of range - list/string index too large",
	"KeyError":          "Dictionary key not found - check if key exists",
	"AttributeError":    "Object has no attribute - check method/property names",
	"ImportError":       "Module import failed - check module name and installation",
	"ZeroDivisionError": "Division by zero - add condition to check denominator",
	"FileNotFoundError": "File not found - check file path and existence",
	"TimeoutError":      "Execution took too long - check for infinite loops or very large inputs",
}

// ErrorSuggestion returns the fix hint for a Python exception class name.
func ErrorSuggestion(kind string) string {
	if s, ok := errorSuggestions[kind]; ok {
		return s
	}
	return "Check the error message and fix the issue"
}

const (
	// excMarker prefixes the line the runner writes to stderr when user code raises.
	excMarker = "@@exc@@"
	// syntaxMarker prefixes the line written when the snippet fails to compile.
	syntaxMarker = "@@syntax@@"
	// exitSyntax is the interpreter exit status for a snippet that does not compile.
	exitSyntax = 2
)

// reportSyntax writes a SyntaxError as kind@@line@@column@@message behind syntaxMarker.
var reportSyntax = `def report_syntax(e):
    msg = getattr(e, 'msg', None) or str(e)
    sys.stderr.write('\n` + syntaxMarker + `%s@@%s@@%s@@%s\n' % (type(e).__name__, getattr(e, 'lineno', None) or 0, getattr(e, 'offset', None) or 0, msg.replace('\n', ' ')))
    sys.exit(` + strconv.Itoa(exitSyntax) + `)
`

// compiler reads a snippet from stdin and compiles it without running anything.
var compiler = `import sys
` + reportSyntax + `src = sys.stdin.read()
try:
    compile(src, '<code>', 'exec', dont_inherit=True)
except (SyntaxError, ValueError) as e:
    report_syntax(e)
`

// runner reads the snippet from stdin and executes it with a reduced builtins table.
var runner = `import builtins, signal, sys
if hasattr(signal, 'SIGXFSZ'):
    signal.signal(signal.SIGXFSZ, signal.SIG_IGN)
` + reportSyntax + `names = ` + pyList(allowedBuiltins) + `
env = {n: getattr(builtins, n) for n in names}
env.update({k: v for k, v in vars(builtins).items() if isinstance(v, type) and issubclass(v, BaseException)})
env['__build_class__'] = builtins.__build_class__
src = sys.stdin.read()
try:
    code = compile(src, '<code>', 'exec', dont_inherit=True)
except (SyntaxError, ValueError) as e:
    report_syntax(e)
try:
    exec(code, {'__builtins__': env, '__name__': '__main__'})
except BaseException as e:
    sys.stdout.flush()
    sys.stderr.write('\n` + excMarker + `%s` + "@@" + `%s\n' % (type(e).__name__, str(e).replace('\n', ' ')))
    sys.exit(1)
`

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

// ExecResult is the outcome of one sandboxed run.
type ExecResult struct {
	Success     bool          `json:"success"`
	Output      string        `json:"output"`
	Error       string        `json:"error,omitempty"`
	Suggestion  string        `json:"suggestion"`
	Killed      bool          `json:"killed,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
	Skipped     bool          `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Restriction string        `json:"restriction,omitempty"`
	// SyntaxFailure is set when the interpreter refused to compile the snippet.
	SyntaxFailure *SyntaxResult `json:"-"`
}

type ExecutorConfig struct {
	Python         string
	Timeout        time.Duration
	MaxOutputBytes int64
	// MaxMemoryBytes caps the address space of the interpreter process.
	MaxMemoryBytes int64
	Disabled       bool
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Python:         "python3",
		Timeout:        5 * time.Second,
		MaxOutputBytes: 64 * 1024,
		MaxMemoryBytes: 256 << 20,
	}
}

// Executor runs snippets in a separate interpreter process confined to fresh user,
// mount, pid, network and ipc namespaces with tight resource limits.
type Executor struct {
	cfg    ExecutorConfig
	logger *slog.Logger

	isolationOnce sync.Once
	isolationErr  error
}

func NewExecutor(cfg ExecutorConfig, logger *slog.Logger) *Executor {
	def := DefaultExecutorConfig()
	if cfg.Python == "" {
		cfg.Python = def.Python
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Restricted returns the first denylisted fragment in code, or "".
func Restricted(code string) string {
	for _, r := range restricted {
		if strings.Contains(code, r) {
			return r
		}
	}
	return ""
}

// Interpreter resolves the configured interpreter on PATH.
func (e *Executor) Interpreter() (string, error) {
	path, err := exec.LookPath(e.cfg.Python)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInterpreterUnavailable, e.cfg.Python, err)
	}
	return path, nil
}

// Isolation reports whether snippets can be executed in an isolated child. The
// namespace check runs once per Executor.
func (e *Executor) Isolation() error {
	if e.cfg.Disabled {
		return ErrExecutionDisabled
	}
	python, err := e.Interpreter()
	if err != nil {
		return err
	}
	e.isolationOnce.Do(func() {
		e.isolationErr = checkIsolation(python)
		if e.isolationErr != nil {
			e.logger.Warn("isolated execution unavailable, snippets will only be checked statically", "error", e.isolationErr)
		}
	})
	return e.isolationErr
}

// Run executes code. Denylisted snippets are refused without starting a process. A
// missing interpreter, disabled execution or a host without namespace support yields a
// skipped result; the error return is reserved for failures to set up the sandbox.
func (e *Executor) Run(ctx context.Context, code string) (ExecResult, error) {
	if r := Restricted(code); r != "" {
		e.logger.Info("refused restricted snippet", "restriction", r)
		return ExecResult{
			Error:       "Restricted operation: " + r,
			Suggestion:  "Code contains potentially unsafe operations",
			Restriction: r,
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}
	switch err := e.Isolation(); {
	case errors.Is(err, ErrExecutionDisabled):
		return ExecResult{Skipped: true, Error: "Code execution is disabled on this server"}, nil
	case errors.Is(err, ErrInterpreterUnavailable):
		e.logger.Warn("skipping execution", "error", err)
		return ExecResult{
			Skipped:    true,
			Error:      "No Python interpreter available to run the code",
			Suggestion: "Install Python 3 or set PYBOT_PYTHON to enable execution checks",
		}, nil
	case err != nil:
		return ExecResult{
			Skipped:    true,
			Error:      "Isolated execution is not available on this host, only static checks were run",
			Suggestion: "Run PyBot on Linux with user namespaces enabled to execute snippets",
		}, nil
	}
	python, err := e.Interpreter()
	if err != nil {
		return ExecResult{}, err
	}

	p, err := e.spawn(ctx, python, runner, code, true)
	if err != nil {
		return ExecResult{}, err
	}
	res := ExecResult{
		Output:    p.stdout,
		Duration:  p.duration,
		Truncated: p.truncated,
	}

	switch {
	case p.timedOut:
		res.Killed = true
		res.Error = fmt.Sprintf("TimeoutError: execution exceeded %s", e.cfg.Timeout)
		res.Suggestion = ErrorSuggestion("TimeoutError")
		e.logger.Warn("snippet killed", "timeout", e.cfg.Timeout)
	case p.exitCode == exitSyntax && strings.Contains(p.stderr, syntaxMarker):
		syn, _ := parseSyntaxError(p.stderr)
		res.SyntaxFailure = &syn
		res.Error = syn.ErrorType + ": " + syn.Message
		res.Suggestion = ErrorSuggestion(syn.ErrorType)
	case p.exitCode != 0:
		kind, msg, ok := parseException(p.stderr)
		if !ok {
			kind, msg = "RuntimeError", strings.TrimSpace(p.stderr)
		}
		res.Error = kind + ": " + msg
		res.Suggestion = ErrorSuggestion(kind)
	default:
		res.Success = true
		res.Error = strings.TrimSpace(p.stderr)
		res.Suggestion = "Code executed successfully!"
	}
	e.logger.Debug("snippet finished", "success", res.Success, "duration", res.Duration, "truncated", res.Truncated)
	return res, nil
}

// Parse compiles code with the interpreter without running it. ok is false when no
// interpreter may be used or compilation could not complete, in which case the
// grammar-based check stands on its own.
func (e *Executor) Parse(ctx context.Context, code string) (res SyntaxResult, ok bool, err error) {
	if e.cfg.Disabled {
		return SyntaxResult{}, false, nil
	}
	python, err := e.Interpreter()
	if err != nil {
		return SyntaxResult{}, false, nil
	}
	p, err := e.spawn(ctx, python, compiler, code, false)
	if err != nil {
		return SyntaxResult{}, false, err
	}
	switch {
	case p.timedOut:
		e.logger.Warn("compile check timed out", "timeout", e.cfg.Timeout)
		return SyntaxResult{}, false, nil
	case p.exitCode == 0:
		return SyntaxResult{Valid: true, Message: "Code syntax is valid!"}, true, nil
	}
	syn, found := parseSyntaxError(p.stderr)
	if !found {
		e.logger.Warn("compile check failed without a diagnosis", "exit", p.exitCode, "stderr", strings.TrimSpace(p.stderr))
		return SyntaxResult{}, false, nil
	}
	return syn, true, nil
}

type procResult struct {
	stdout, stderr string
	exitCode       int
	truncated      bool
	timedOut       bool
	duration       time.Duration
}

// spawn starts script under the interpreter, applies resource limits before the code
// is handed over on stdin, and waits for it. isolated additionally moves the child
// into its own namespaces as an unprivileged user.
func (e *Executor) spawn(ctx context.Context, python, script, code string, isolated bool) (procResult, error) {
	dir, err := os.MkdirTemp("", "pybot-run-*")
	if err != nil {
		return procResult{}, fmt.Errorf("create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)
	// the unprivileged sandbox user has to be able to enter its working directory
	if err := os.Chmod(dir, 0o755); err != nil {
		return procResult{}, fmt.Errorf("create sandbox dir: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, python, "-I", "-S", "-B", "-c", script)
	cmd.Dir = dir
	cmd.Env = []string{"PYTHONIOENCODING=utf-8", "HOME=" + dir}
	cmd.WaitDelay = time.Second
	confine(cmd, isolated)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return procResult{}, fmt.Errorf("stdin pipe: %w", err)
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: e.cfg.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: e.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return procResult{}, ctxErr
		}
		return procResult{}, fmt.Errorf("start interpreter: %w", err)
	}
	if err := applyLimits(cmd.Process.Pid, e.limits()); err != nil {
		_ = killGroup(cmd)
		_ = cmd.Wait()
		return procResult{}, fmt.Errorf("limit interpreter: %w", err)
	}
	// a child that dies early closes the pipe; Wait reports why
	_, _ = io.WriteString(stdin, code)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	p := procResult{
		stdout:    stdoutBuf.String(),
		stderr:    stderrBuf.String(),
		truncated: stdout.truncated || stderr.truncated,
		duration:  time.Since(start),
	}
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		p.timedOut = true
	case errors.Is(execCtx.Err(), context.Canceled):
		return p, ctx.Err()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return p, fmt.Errorf("run interpreter: %w", waitErr)
		}
		// -1 when killed by a signal, e.g. the CPU limit
		p.exitCode = exitErr.ExitCode()
	}
	return p, nil
}

// limits derives the per-process resource limits from the executor config.
func (e *Executor) limits() resourceLimits {
	return resourceLimits{
		memoryBytes: e.cfg.MaxMemoryBytes,
		cpuSeconds:  uint64(math.Ceil(e.cfg.Timeout.Seconds())) + 1,
	}
}

// resourceLimits is what every interpreter child is held to. Writing files and
// starting processes are refused outright.
type resourceLimits struct {
	memoryBytes int64
	cpuSeconds  uint64
}

// parseException finds the runner's marker line in stderr.
func parseException(stderr string) (kind, msg string, ok bool) {
	idx := strings.LastIndex(stderr, excMarker)
	if idx < 0 {
		return "", "", false
	}
	line, _, _ := strings.Cut(stderr[idx+len(excMarker):], "\n")
	kind, msg, ok = strings.Cut(line, "@@")
	return kind, msg, ok
}

// parseSyntaxError decodes the compile failure line written behind syntaxMarker.
func parseSyntaxError(stderr string) (SyntaxResult, bool) {
	idx := strings.LastIndex(stderr, syntaxMarker)
	if idx < 0 {
		return SyntaxResult{}, false
	}
	line, _, _ := strings.Cut(stderr[idx+len(syntaxMarker):], "\n")
	parts := strings.SplitN(line, "@@", 4)
	if len(parts) != 4 {
		return SyntaxResult{}, false
	}
	kind := parts[0]
	if kind == "ValueError" {
		kind = "SyntaxError"
	}
	lineNo, _ := strconv.Atoi(parts[1])
	col, _ := strconv.Atoi(parts[2])
	msg := parts[3]
	if lineNo > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, lineNo)
	}
	return invalid(kind, msg, lineNo, col), true
}

// limitedWriter keeps the first max bytes and silently drops the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.max - lw.written; int64(n) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}
