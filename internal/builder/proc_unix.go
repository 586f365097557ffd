//go:build unix

package builder

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs cmd in its own process group so that cancelling it
// kills everything the build script started.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
