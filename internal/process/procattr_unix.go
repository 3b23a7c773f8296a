//go:build unix

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in a new process group so cancellation
// reaches anything it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the child's process group. exec kills the
// child itself once WaitDelay expires.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative PID signals the process group (created via Setpgid)
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
