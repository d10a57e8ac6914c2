//go:build !linux

package codecheck

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Namespaces are Linux only; elsewhere snippets are compiled but never executed.

func confine(cmd *exec.Cmd, isolated bool) {}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func applyLimits(pid int, l resourceLimits) error { return nil }

func checkIsolation(python string) error {
	return fmt.Errorf("%w: not supported on %s", ErrIsolationUnavailable, runtime.GOOS)
}
