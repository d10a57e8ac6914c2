//go:build linux

package codecheck

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// sandboxID is the uid and gid snippets run as inside their user namespace.
const sandboxID = 65534

// cloneFlags puts the child in fresh namespaces: no network, no view of host pids,
// a private mount table and an unprivileged identity.
func cloneFlags() uintptr {
	return syscall.CLONE_NEWUSER |
		syscall.CLONE_NEWNS |
		syscall.CLONE_NEWPID |
		syscall.CLONE_NEWNET |
		syscall.CLONE_NEWIPC |
		syscall.CLONE_NEWUTS
}

// hostIDs returns the host uid and gid the sandbox identity maps onto. Root maps onto
// nobody so a snippet never holds root's file permissions on the host.
func hostIDs() (uid, gid int) {
	uid, gid = os.Getuid(), os.Getgid()
	if uid == 0 {
		return sandboxID, sandboxID
	}
	return uid, gid
}

// confine starts the child in its own process group, killed as a whole on cancel.
// isolated also moves it into new namespaces as sandboxID.
func confine(cmd *exec.Cmd, isolated bool) {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if isolated {
		uid, gid := hostIDs()
		attr.Cloneflags = cloneFlags()
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: sandboxID, HostID: uid, Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: sandboxID, HostID: gid, Size: 1}}
		attr.GidMappingsEnableSetgroups = false
		attr.Credential = &syscall.Credential{Uid: sandboxID, Gid: sandboxID, NoSetGroups: true}
	}
	cmd.SysProcAttr = attr
	cmd.Cancel = func() error { return killGroup(cmd) }
}

// killGroup kills the child's whole process group, then the child itself.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return cmd.Process.Kill()
}

// rlimits maps each limited resource to its value. Address space and CPU time follow
// the executor config; files cannot grow past zero bytes and no further processes
// can be started.
func rlimits(l resourceLimits) map[int]unix.Rlimit {
	limits := map[int]unix.Rlimit{
		unix.RLIMIT_FSIZE:  {Cur: 0, Max: 0},
		unix.RLIMIT_NPROC:  {Cur: 1, Max: 1},
		unix.RLIMIT_NOFILE: {Cur: 32, Max: 32},
		unix.RLIMIT_CORE:   {Cur: 0, Max: 0},
	}
	if l.memoryBytes > 0 {
		limits[unix.RLIMIT_AS] = unix.Rlimit{Cur: uint64(l.memoryBytes), Max: uint64(l.memoryBytes)}
	}
	if l.cpuSeconds > 0 {
		limits[unix.RLIMIT_CPU] = unix.Rlimit{Cur: l.cpuSeconds, Max: l.cpuSeconds}
	}
	return limits
}

// applyLimits lowers the limits of a running child. It must run before the child is
// given anything to execute.
func applyLimits(pid int, l resourceLimits) error {
	for resource, lim := range rlimits(l) {
		if err := unix.Prlimit(pid, resource, &lim, nil); err != nil {
			return fmt.Errorf("prlimit %d: %w", resource, err)
		}
	}
	return nil
}

// checkIsolation starts a throwaway interpreter inside the namespaces to learn
// whether this host allows them.
func checkIsolation(python string) error {
	if !userNamespacesAllowed() {
		return fmt.Errorf("%w: unprivileged user namespaces are disabled", ErrIsolationUnavailable)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, python, "-I", "-S", "-c", "pass")
	cmd.Dir = "/"
	cmd.Env = []string{}
	confine(cmd, true)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrIsolationUnavailable, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// userNamespacesAllowed reads the sysctls some kernels use to switch off user
// namespaces for unprivileged callers. Missing files mean no restriction.
func userNamespacesAllowed() bool {
	if data, err := os.ReadFile("/proc/sys/user/max_user_namespaces"); err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			return false
		}
	}
	if os.Getuid() == 0 {
		return true
	}
	if data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone"); err == nil {
		return strings.TrimSpace(string(data)) != "0"
	}
	return true
}
