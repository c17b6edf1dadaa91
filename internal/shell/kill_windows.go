//go:build windows

package shell

import (
	"os/exec"
	"time"
)

func configureKill(cmd *exec.Cmd) {
	cmd.WaitDelay = 2 * time.Second
}
