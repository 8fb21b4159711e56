//go:build !windows

package hook

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"
)

// createCommand creates an exec.Cmd for a hook on Unix-like systems.
func (e *HookExecutor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "/bin/sh", "-c", command)
	// The command leads a new process group; cancellation signals the whole
	// group so children started by the shell die with it.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}
