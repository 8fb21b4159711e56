package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
)

// fakeDiffer records the passes it was asked to run.
type fakeDiffer struct {
	mu        sync.Mutex
	calls     []string
	syncTimes []time.Time
	syncErr   error
	syncDelay time.Duration
	block     chan struct{}
}

func (f *fakeDiffer) Sync(ctx context.Context, pair pathsync.Pair) error {
	f.mu.Lock()
	f.calls = append(f.calls, "sync")
	f.syncTimes = append(f.syncTimes, time.Now())
	block, delay, err := f.block, f.syncDelay, f.syncErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeDiffer) Mirror(ctx context.Context, pair pathsync.Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "mirror")
	return nil
}

func (f *fakeDiffer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDiffer) SyncTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.syncTimes...)
}

// fakeJournal records the cycle markers.
type fakeJournal struct {
	mu      sync.Mutex
	entries []string
}

func (j *fakeJournal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *fakeJournal) CycleStarted(source, replica string) { j.add("started " + source + " " + replica) }
func (j *fakeJournal) CycleFinished()                      { j.add("finished") }
func (j *fakeJournal) CycleFailed(err error)               { j.add("failed: " + err.Error()) }

func (j *fakeJournal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func newPair(t *testing.T) pathsync.Pair {
	t.Helper()
	base := t.TempDir()
	src := filepath.Join(base, "source")
	rep := filepath.Join(base, "replica")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.Mkdir(rep, 0755))
	pair, err := pathsync.NewPair(src, rep)
	require.NoError(t, err)
	return pair
}

// runInBackground starts Run and returns a channel with its result.
func runInBackground(ctx context.Context, s *Scheduler) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func TestNew_Validation(t *testing.T) {
	pair := newPair(t)
	differ, journal := &fakeDiffer{}, &fakeJournal{}

	_, err := New(pair, time.Minute, differ, journal)
	assert.NoError(t, err)

	testCases := []struct {
		name     string
		pair     pathsync.Pair
		interval time.Duration
		differ   Differ
		journal  Journal
	}{
		{"Zero interval", pair, 0, differ, journal},
		{"Negative interval", pair, -time.Minute, differ, journal},
		{"Nil differ", pair, time.Minute, nil, journal},
		{"Nil journal", pair, time.Minute, differ, nil},
		{"Missing source", pathsync.Pair{Source: filepath.Join(pair.Source, "missing"), Replica: pair.Replica}, time.Minute, differ, journal},
		{"Missing replica", pathsync.Pair{Source: pair.Source, Replica: filepath.Join(pair.Replica, "missing")}, time.Minute, differ, journal},
		{"Nested replica", pathsync.Pair{Source: filepath.Dir(pair.Source), Replica: pair.Replica}, time.Minute, differ, journal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.pair, tc.interval, tc.differ, tc.journal)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestRunCycle(t *testing.T) {
	pair := newPair(t)

	t.Run("Sync pass precedes mirror pass between the markers", func(t *testing.T) {
		differ, journal := &fakeDiffer{}, &fakeJournal{}
		s, err := New(pair, time.Minute, differ, journal)
		require.NoError(t, err)

		require.NoError(t, s.RunCycle(context.Background()))

		assert.Equal(t, []string{"sync", "mirror"}, differ.Calls())
		assert.Equal(t, []string{"started " + pair.Source + " " + pair.Replica, "finished"}, journal.Entries())
		assert.EqualValues(t, 1, s.Cycles())
		assert.Equal(t, Idle, s.State())
	})

	t.Run("Failed sync pass skips the mirror pass", func(t *testing.T) {
		differ, journal := &fakeDiffer{syncErr: errors.New("source vanished")}, &fakeJournal{}
		s, err := New(pair, time.Minute, differ, journal)
		require.NoError(t, err)

		err = s.RunCycle(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "source vanished")
		assert.Equal(t, []string{"sync"}, differ.Calls())
		entries := journal.Entries()
		require.Len(t, entries, 2)
		assert.True(t, strings.HasPrefix(entries[1], "failed: "))
		assert.EqualValues(t, 1, s.Cycles())
	})
}

func TestRun_FirstCycleRunsImmediately(t *testing.T) {
	differ := &fakeDiffer{}
	s, err := New(newPair(t), time.Hour, differ, &fakeJournal{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runInBackground(ctx, s)

	assert.Eventually(t, func() bool { return s.Cycles() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.EqualValues(t, 1, s.Cycles(), "no second cycle within the interval")
}

func TestRun_RepeatsAndStops(t *testing.T) {
	differ := &fakeDiffer{}
	s, err := New(newPair(t), 10*time.Millisecond, differ, &fakeJournal{})
	require.NoError(t, err)

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, 5*time.Second, 5*time.Millisecond)

	s.Stop()
	require.NoError(t, <-errCh)
	stopped := s.Cycles()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, s.Cycles(), "no cycle may run after Stop returned")
	assert.Equal(t, Idle, s.State())
}

func TestRun_ContinuesAfterFailedCycles(t *testing.T) {
	differ := &fakeDiffer{syncErr: errors.New("boom")}
	journal := &fakeJournal{}
	s, err := New(newPair(t), 5*time.Millisecond, differ, journal)
	require.NoError(t, err)

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return s.Cycles() >= 3 }, 5*time.Second, 5*time.Millisecond)
	s.Stop()
	require.NoError(t, <-errCh)
}

func TestRun_IntervalCountsFromCycleEnd(t *testing.T) {
	const cycleDuration = 40 * time.Millisecond
	const interval = 40 * time.Millisecond

	differ := &fakeDiffer{syncDelay: cycleDuration}
	s, err := New(newPair(t), interval, differ, &fakeJournal{})
	require.NoError(t, err)

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return len(differ.SyncTimes()) >= 3 }, 5*time.Second, 5*time.Millisecond)
	s.Stop()
	require.NoError(t, <-errCh)

	times := differ.SyncTimes()
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), cycleDuration+interval)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	differ := &fakeDiffer{}
	s, err := New(newPair(t), time.Hour, differ, &fakeJournal{})
	require.NoError(t, err)

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return s.Cycles() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)

	s.Stop()
	require.NoError(t, <-errCh)
}

func TestState_RunningDuringCycle(t *testing.T) {
	block := make(chan struct{})
	differ := &fakeDiffer{block: block}
	s, err := New(newPair(t), time.Hour, differ, &fakeJournal{})
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State())

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return s.State() == Running }, 2*time.Second, 5*time.Millisecond)

	close(block)
	assert.Eventually(t, func() bool { return s.State() == Idle && s.Cycles() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	require.NoError(t, <-errCh)
}

func TestStop_InterruptsRunningCycle(t *testing.T) {
	differ := &fakeDiffer{block: make(chan struct{})}
	journal := &fakeJournal{}
	s, err := New(newPair(t), time.Hour, differ, journal)
	require.NoError(t, err)

	errCh := runInBackground(context.Background(), s)
	assert.Eventually(t, func() bool { return s.State() == Running }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"sync"}, differ.Calls())
	entries := journal.Entries()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1], context.Canceled.Error())
}

func TestStop_WithoutRunIsNoop(t *testing.T) {
	s, err := New(newPair(t), time.Minute, &fakeDiffer{}, &fakeJournal{})
	require.NoError(t, err)
	s.Stop()
	assert.Equal(t, "idle", s.State().String())
}

// TestHelperProcess is a helper for testing hooks.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 && strings.Contains(args[0], "fail") {
		os.Exit(1)
	}
	os.Exit(0)
}

func mockCommandContext(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", strings.Join(arg[1:], " ")}
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestRunCycle_Hooks(t *testing.T) {
	pair := newPair(t)
	executor := hook.NewHookExecutor(mockCommandContext)

	t.Run("Failing pre-cycle hook in fail-fast mode skips the passes", func(t *testing.T) {
		differ := &fakeDiffer{}
		plan := &hook.Plan{Enabled: true, PreCycleCommands: []string{"fail"}, FailFast: true}
		s, err := New(pair, time.Minute, differ, &fakeJournal{}, WithHooks(executor, plan))
		require.NoError(t, err)

		err = s.RunCycle(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pre-cycle hook failed")
		assert.Empty(t, differ.Calls())
	})

	t.Run("Failing hooks without fail-fast do not fail the cycle", func(t *testing.T) {
		differ := &fakeDiffer{}
		plan := &hook.Plan{Enabled: true, PreCycleCommands: []string{"fail"}, PostCycleCommands: []string{"fail"}}
		s, err := New(pair, time.Minute, differ, &fakeJournal{}, WithHooks(executor, plan), WithName("docs"))
		require.NoError(t, err)

		require.NoError(t, s.RunCycle(context.Background()))
		assert.Equal(t, []string{"sync", "mirror"}, differ.Calls())
	})

	t.Run("Disabled hooks are skipped", func(t *testing.T) {
		differ := &fakeDiffer{}
		s, err := New(pair, time.Minute, differ, &fakeJournal{}, WithHooks(executor, &hook.Plan{}))
		require.NoError(t, err)

		require.NoError(t, s.RunCycle(context.Background()))
		assert.Equal(t, []string{"sync", "mirror"}, differ.Calls())
	})
}

func TestRunCycle_WithDifferAndAuditLog(t *testing.T) {
	pair := newPair(t)
	logDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(pair.Source, "a.txt"), []byte("alpha"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(pair.Replica, "old"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pair.Replica, "old", "b.txt"), []byte("bravo"), 0644))

	sink, err := auditlog.Open(logDir, auditlog.WithConsole(nil))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	s, err := New(pair, time.Minute, pathsync.NewDiffer(nil, sink), sink)
	require.NoError(t, err)
	require.NoError(t, s.RunCycle(context.Background()))
	require.NoError(t, s.RunCycle(context.Background()))

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		// Drop the "YYYY-MM-DD HH:MM:SS " prefix.
		require.Greater(t, len(line), 20)
		msgs = append(msgs, line[20:])
	}

	cycleStart := []string{
		"Synchronization started",
		"Source folder: " + pair.Source,
		"Replica folder: " + pair.Replica,
	}
	want := append(append([]string{}, cycleStart...),
		"CREATED File: a.txt",
		"REMOVED File: old/b.txt",
		"REMOVED Folder: old",
		"Synchronization finished",
	)
	// The second cycle is converged and only writes the markers.
	want = append(append(want, cycleStart...), "Synchronization finished")
	assert.Equal(t, want, msgs)
}
