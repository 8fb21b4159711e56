package auditlog

import "sync"

// Memory is a Recorder that keeps everything in memory.
type Memory struct {
	mu       sync.Mutex
	events   []Event
	failures []Failure
}

func (m *Memory) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *Memory) Failure(op, relPath string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, Failure{Op: op, RelPath: relPath, Err: err})
}

// Events returns a copy of the recorded events in arrival order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Failures returns a copy of the recorded failures in arrival order.
func (m *Memory) Failures() []Failure {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Failure, len(m.failures))
	copy(out, m.failures)
	return out
}

// Reset drops everything recorded so far.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.failures = nil
}

// Tee forwards every record to all recorders.
type Tee []Recorder

func (t Tee) Record(e Event) {
	for _, r := range t {
		r.Record(e)
	}
}

func (t Tee) Failure(op, relPath string, err error) {
	for _, r := range t {
		r.Failure(op, relPath, err)
	}
}
