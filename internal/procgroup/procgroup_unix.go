//go:build !windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Isolate starts cmd in its own process group so that a Ctrl+C in the
// terminal reaches the CLI only. The CLI then stops its children itself.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
