//go:build !unix

package engines

import (
	"errors"
	"os/exec"
)

var errNoSuspend = errors.New("process suspension not supported on this platform")

func setProcessGroup(cmd *exec.Cmd) {}

func suspendProcessGroup(cmd *exec.Cmd) error {
	return errNoSuspend
}

func resumeProcessGroup(cmd *exec.Cmd) error {
	return nil
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
