package hook

// Plan lists the shell commands run around every synchronization cycle.
type Plan struct {
	Enabled bool

	PreCycleCommands  []string
	PostCycleCommands []string

	// FailFast turns a failing command into an error and stops the remaining
	// commands. Otherwise failures are logged and the next command runs.
	FailFast bool
}
