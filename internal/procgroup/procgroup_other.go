//go:build !unix || windows

package procgroup

import (
	"os/exec"
	"syscall"
)

func Set(cmd *exec.Cmd) {
	// Best effort: no process groups on this platform.
}

// Kill falls back to signalling only the root process.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
