// Package hook runs user supplied shell commands before and after a
// synchronization cycle. Commands run through the platform shell in their own
// process group so a cancelled cycle takes down everything they spawned.
package hook

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Environment variables exported to every hook command.
const (
	EnvSource  = "PGL_MIRROR_SOURCE"
	EnvReplica = "PGL_MIRROR_REPLICA"
	EnvCycle   = "PGL_MIRROR_CYCLE"
)

// Env describes the cycle a hook runs for.
type Env struct {
	Source  string
	Replica string
	Cycle   uint64
}

func (e Env) vars() []string {
	return []string{
		EnvSource + "=" + e.Source,
		EnvReplica + "=" + e.Replica,
		EnvCycle + "=" + strconv.FormatUint(e.Cycle, 10),
	}
}

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

	stdout io.Writer
	stderr io.Writer
}

// NewHookExecutor creates a HookExecutor. Command output goes to the process
// stdout and stderr unless SetOutput is called.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &HookExecutor{
		commandContext: commandContext,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

// SetOutput redirects the output of hook commands.
func (e *HookExecutor) SetOutput(stdout, stderr io.Writer) {
	e.stdout = stdout
	e.stderr = stderr
}

// RunPreHook runs the pre-cycle commands of p.
func (e *HookExecutor) RunPreHook(ctx context.Context, hookName string, p *Plan, env Env) error {
	if p == nil || !p.Enabled {
		return ErrDisabled
	}
	return e.run(ctx, "Pre-"+hookName, p.PreCycleCommands, p.FailFast, env)
}

// RunPostHook runs the post-cycle commands of p.
func (e *HookExecutor) RunPostHook(ctx context.Context, hookName string, p *Plan, env Env) error {
	if p == nil || !p.Enabled {
		return ErrDisabled
	}
	return e.run(ctx, "Post-"+hookName, p.PostCycleCommands, p.FailFast, env)
}

func (e *HookExecutor) run(ctx context.Context, hookName string, commands []string, failFast bool, env Env) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", hookName))

	for _, hookCommand := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, env.vars()...)
		cmd.Stdout = e.stdout
		cmd.Stderr = e.stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context kills the command; report the cancellation, not the kill.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if failFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
