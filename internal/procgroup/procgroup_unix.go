//go:build unix && !windows

// Package procgroup starts child processes in their own process group so a
// timeout kill reaps the whole tree instead of orphaning grandchildren.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// Set configures the command to start in a new process group.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill sends a signal to the process group of the command. A nil command, a
// never-started process, or one that already exited all return nil.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Setpgid made the child a group leader, so its PID is the PGID.
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}

	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}
