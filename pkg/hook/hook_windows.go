//go:build windows

package hook

import (
	"context"
	"os/exec"

	"golang.org/x/sys/windows"
)

// createCommand creates an exec.Cmd for a hook on Windows.
func (e *HookExecutor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "cmd", "/C", command)
	// A new process group lets a cancelled cycle terminate the whole tree
	// started by cmd, not only cmd itself.
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
