package pathsync

import "time"

// Plan configures a Differ.
type Plan struct {
	// ModTimeWindow truncates modification times before they are compared.
	// Zero compares them exactly.
	ModTimeWindow time.Duration

	ExcludeFiles []string
	ExcludeDirs  []string

	// Metrics enables the per-pass counters and their summary log.
	Metrics bool
}
