//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Isolate starts cmd in a new process group so that console control events
// reach the CLI only.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}
