package auditlog

import (
	"fmt"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Action is the mutation applied to a replica entry.
type Action int

const (
	Created Action = iota
	Updated
	Removed
)

var actionToString = map[Action]string{
	Created: "CREATED",
	Updated: "UPDATED",
	Removed: "REMOVED",
}

var stringToAction map[string]Action

// Kind classifies an entry as a folder or a file.
type Kind int

const (
	Folder Kind = iota
	File
)

var kindToString = map[Kind]string{
	Folder: "Folder",
	File:   "File",
}

var stringToKind map[string]Kind

func init() {
	stringToAction = util.InvertMap(actionToString)
	stringToKind = util.InvertMap(kindToString)
}

func (a Action) String() string {
	if str, ok := actionToString[a]; ok {
		return str
	}
	return fmt.Sprintf("unknown_action(%d)", int(a))
}

func ParseAction(s string) (Action, error) {
	if a, ok := stringToAction[strings.ToUpper(s)]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("invalid action: %q. Must be 'CREATED', 'UPDATED' or 'REMOVED'", s)
}

func (k Kind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("unknown_kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for str, k := range stringToKind {
		if strings.EqualFold(str, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid kind: %q. Must be 'Folder' or 'File'", s)
}

// Event is one audit record: an action applied to a relative entry of the replica.
type Event struct {
	Action  Action
	Kind    Kind
	RelPath string
}

// String renders the event the way it appears in the log, e.g. "CREATED File: docs/a.txt".
func (e Event) String() string {
	return fmt.Sprintf("%s %s: %s", e.Action, e.Kind, e.RelPath)
}

// ParseEvent parses the message part of an audit line produced by Event.String.
func ParseEvent(s string) (Event, error) {
	head, rel, ok := strings.Cut(s, ": ")
	if !ok {
		return Event{}, fmt.Errorf("invalid event %q: missing ': ' separator", s)
	}
	actionStr, kindStr, ok := strings.Cut(head, " ")
	if !ok {
		return Event{}, fmt.Errorf("invalid event %q: missing kind", s)
	}
	action, err := ParseAction(actionStr)
	if err != nil {
		return Event{}, err
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Event{}, err
	}
	return Event{Action: action, Kind: kind, RelPath: rel}, nil
}

// Failure describes an entry that could not be processed and was skipped.
type Failure struct {
	Op      string
	RelPath string
	Err     error
}

// Recorder receives the audit trail of a synchronization pass.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(e Event)
	Failure(op, relPath string, err error)
}
