//go:build unix

package engines

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child into its own process group so signals
// reach it and any descendants as a unit.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup signals the child's process group. With Setpgid
// the child is its group leader, so the negated pid addresses the whole
// group.
func signalProcessGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return unix.Kill(-cmd.Process.Pid, sig)
}

func suspendProcessGroup(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd, unix.SIGSTOP)
}

func resumeProcessGroup(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd, unix.SIGCONT)
}

func killProcessGroup(cmd *exec.Cmd) error {
	return signalProcessGroup(cmd, unix.SIGKILL)
}
