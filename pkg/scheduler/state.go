package scheduler

import "fmt"

// State is the phase a Scheduler is in.
type State int32

const (
	// Idle means no cycle is executing; the timer may be armed.
	Idle State = iota
	// Running means a cycle is executing.
	Running
)

var stateToString = map[State]string{
	Idle:    "idle",
	Running: "running",
}

func (s State) String() string {
	if str, ok := stateToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_state(%d)", int32(s))
}
