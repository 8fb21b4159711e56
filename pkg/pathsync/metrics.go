package pathsync

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Metrics defines the interface for collecting and reporting the statistics of one pass.
type Metrics interface {
	AddDirsCreated(n int64)
	AddDirsRemoved(n int64)
	AddFilesCreated(n int64)
	AddFilesUpdated(n int64)
	AddFilesUpToDate(n int64)
	AddFilesRemoved(n int64)
	AddBytesWritten(n int64)
	AddEntriesProcessed(n int64)
	AddEntriesExcluded(n int64)
	AddEntriesSkipped(n int64)
	AddEntryFailures(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds the atomic counters of one pass. Counters are read by the
// progress goroutine while the pass writes them.
type SyncMetrics struct {
	DirsCreated      atomic.Int64
	DirsRemoved      atomic.Int64
	FilesCreated     atomic.Int64
	FilesUpdated     atomic.Int64
	FilesUpToDate    atomic.Int64
	FilesRemoved     atomic.Int64
	BytesWritten     atomic.Int64
	EntriesProcessed atomic.Int64
	EntriesExcluded  atomic.Int64
	EntriesSkipped   atomic.Int64
	EntryFailures    atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *SyncMetrics) AddDirsCreated(n int64)      { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddDirsRemoved(n int64)      { m.DirsRemoved.Add(n) }
func (m *SyncMetrics) AddFilesCreated(n int64)     { m.FilesCreated.Add(n) }
func (m *SyncMetrics) AddFilesUpdated(n int64)     { m.FilesUpdated.Add(n) }
func (m *SyncMetrics) AddFilesUpToDate(n int64)    { m.FilesUpToDate.Add(n) }
func (m *SyncMetrics) AddFilesRemoved(n int64)     { m.FilesRemoved.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)     { m.BytesWritten.Add(n) }
func (m *SyncMetrics) AddEntriesProcessed(n int64) { m.EntriesProcessed.Add(n) }
func (m *SyncMetrics) AddEntriesExcluded(n int64)  { m.EntriesExcluded.Add(n) }
func (m *SyncMetrics) AddEntriesSkipped(n int64)   { m.EntriesSkipped.Add(n) }
func (m *SyncMetrics) AddEntryFailures(n int64)    { m.EntryFailures.Add(n) }

func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

func (m *SyncMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary logs the current counters with a custom message.
// It is called by the progress ticker and once at the end of a pass.
func (m *SyncMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"bytes_written", humanize.IBytes(uint64(m.BytesWritten.Load())),
		"dirs_created", m.DirsCreated.Load(),
		"files_created", m.FilesCreated.Load(),
		"files_updated", m.FilesUpdated.Load(),
		"files_uptodate", m.FilesUpToDate.Load(),
		"files_removed", m.FilesRemoved.Load(),
		"dirs_removed", m.DirsRemoved.Load(),
		"entries_excluded", m.EntriesExcluded.Load(),
		"entries_skipped", m.EntriesSkipped.Load(),
		"entry_failures", m.EntryFailures.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddDirsRemoved(n int64)                           {}
func (m *NoopMetrics) AddFilesCreated(n int64)                          {}
func (m *NoopMetrics) AddFilesUpdated(n int64)                          {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)                         {}
func (m *NoopMetrics) AddFilesRemoved(n int64)                          {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) AddEntriesProcessed(n int64)                      {}
func (m *NoopMetrics) AddEntriesExcluded(n int64)                       {}
func (m *NoopMetrics) AddEntriesSkipped(n int64)                        {}
func (m *NoopMetrics) AddEntryFailures(n int64)                         {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
