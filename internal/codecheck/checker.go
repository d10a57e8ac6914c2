package codecheck

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jeefy/pybot/internal/style"
)

// Checker runs the full pipeline over a snippet: syntax, lint, then execution when the
// syntax is valid.
type Checker struct {
	exec   *Executor
	logger *slog.Logger
}

func NewChecker(exec *Executor, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = NewExecutor(DefaultExecutorConfig(), logger)
	}
	return &Checker{exec: exec, logger: logger}
}

// Inspect checks code and returns the report for style s. When an interpreter is
// available its compiler decides validity; the grammar-based diagnosis is kept when
// both agree the code is broken.
func (c *Checker) Inspect(ctx context.Context, code string, s style.Style) (Report, error) {
	syn, err := CheckSyntax(ctx, code)
	if err != nil {
		return Report{}, err
	}
	compiled, ok, err := c.exec.Parse(ctx, code)
	if err != nil {
		return Report{}, fmt.Errorf("compile snippet: %w", err)
	}
	if ok && (compiled.Valid || syn.Valid) {
		syn = compiled
	}
	r := Report{Code: code, Syntax: syn, Analysis: Analyze(code), Style: s}
	if !syn.Valid {
		c.logger.Debug("syntax check failed", "type", syn.ErrorType, "line", syn.Line)
		return r, nil
	}
	res, err := c.exec.Run(ctx, code)
	if err != nil {
		return Report{}, fmt.Errorf("execute snippet: %w", err)
	}
	if res.SyntaxFailure != nil {
		r.Syntax = *res.SyntaxFailure
		return r, nil
	}
	r.Exec = &res
	return r, nil
}

// CheckMessage extracts code from a chat message and inspects it. ok is false when the
// message does not look like code or nothing could be extracted.
func (c *Checker) CheckMessage(ctx context.Context, message string, s style.Style) (r Report, ok bool, err error) {
	if !Detect(message) {
		return Report{}, false, nil
	}
	code, ok := Extract(message)
	if !ok {
		return Report{}, false, nil
	}
	r, err = c.Inspect(ctx, code, s)
	if err != nil {
		return Report{}, true, err
	}
	return r, true, nil
}
