//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
	"time"
)

// configureKill puts the process in its own group so a timeout also
// reaches the children of sh -c.
func configureKill(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
}
