//go:build unix

package build

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command in its own process group so that
// cancellation also kills the compiler processes the build tool spawns
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
