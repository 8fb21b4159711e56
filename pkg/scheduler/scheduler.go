// Package scheduler drives the periodic synchronization of one pair.
//
// A Scheduler runs its first cycle as soon as Run is called and every later
// cycle one interval after the previous cycle completed, so the cadence drifts
// by the duration of each cycle. Cycles of one Scheduler never overlap. A
// failed cycle is logged and the next one is still scheduled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
)

// ErrAlreadyRunning is returned by Run when the Scheduler is already running.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Differ applies the two passes of a cycle. *pathsync.Differ implements it.
type Differ interface {
	Sync(ctx context.Context, pair pathsync.Pair) error
	Mirror(ctx context.Context, pair pathsync.Pair) error
}

// Journal receives the cycle markers. *auditlog.Logger implements it.
type Journal interface {
	CycleStarted(source, replica string)
	CycleFinished()
	CycleFailed(err error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithName labels the diagnostic logs of the Scheduler.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// WithHooks runs the commands of plan before and after every cycle.
func WithHooks(executor *hook.HookExecutor, plan *hook.Plan) Option {
	return func(s *Scheduler) {
		s.hookExecutor = executor
		s.hookPlan = plan
	}
}

type Scheduler struct {
	name     string
	pair     pathsync.Pair
	interval time.Duration
	differ   Differ
	journal  Journal

	hookExecutor *hook.HookExecutor
	hookPlan     *hook.Plan

	state  atomic.Int32
	cycles atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates the pair and the interval and returns an idle Scheduler.
func New(pair pathsync.Pair, interval time.Duration, differ Differ, journal Journal, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	if differ == nil {
		return nil, errors.New("differ cannot be nil")
	}
	if journal == nil {
		return nil, errors.New("journal cannot be nil")
	}
	if err := preflight.CheckPair(pair.Source, pair.Replica); err != nil {
		return nil, fmt.Errorf("invalid synchronization pair: %w", err)
	}

	s := &Scheduler{
		name:     pair.String(),
		pair:     pair,
		interval: interval,
		differ:   differ,
		journal:  journal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pair returns the pair this Scheduler mirrors.
func (s *Scheduler) Pair() pathsync.Pair { return s.pair }

// Interval returns the delay between the end of a cycle and the start of the next.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// State reports whether a cycle is executing right now.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Cycles returns the number of cycles that ran to their end, failed ones included.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

// Run executes cycles until ctx is cancelled or Stop is called. It returns nil
// on a regular stop; cycle failures never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running, s.cancel, s.done = true, cancel, done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running, s.cancel, s.done = false, nil, nil
		s.mu.Unlock()
		close(done)
	}()

	plog.Info("Scheduler started", "pair", s.name, "interval", s.interval)
	for {
		if ctx.Err() != nil {
			break
		}
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			plog.Warn("Cycle failed, next cycle is still scheduled", "pair", s.name, "error", err, "next_in", s.interval)
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	plog.Info("Scheduler stopped", "pair", s.name, "cycles", s.Cycles())
	return nil
}

// Stop cancels a running Run and waits until it returned. A cycle in progress
// is interrupted between two entries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunCycle executes one cycle: start markers, pre-cycle hooks, the sync pass,
// the mirror pass, post-cycle hooks and the finish marker.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.state.Store(int32(Running))
	defer s.state.Store(int32(Idle))

	start := time.Now()
	cycle := s.cycles.Load() + 1

	s.journal.CycleStarted(s.pair.Source, s.pair.Replica)
	err := s.cycle(ctx, cycle)
	if err != nil {
		s.journal.CycleFailed(err)
	} else {
		s.journal.CycleFinished()
	}
	s.cycles.Add(1)

	plog.Info("Cycle completed", "pair", s.name, "cycle", cycle, "duration", time.Since(start).Round(time.Millisecond), "ok", err == nil)
	return err
}

func (s *Scheduler) cycle(ctx context.Context, cycle uint64) (err error) {
	env := hook.Env{Source: s.pair.Source, Replica: s.pair.Replica, Cycle: cycle}

	if s.hookExecutor != nil {
		if err := s.hookExecutor.RunPreHook(ctx, "cycle", s.hookPlan, env); err != nil && !hints.IsHint(err) {
			return fmt.Errorf("pre-cycle hook failed: %w", err)
		}
		// Post-cycle hooks run even when a pass failed.
		defer func() {
			hookErr := s.hookExecutor.RunPostHook(ctx, "cycle", s.hookPlan, env)
			if hookErr == nil || hints.IsHint(hookErr) {
				return
			}
			if errors.Is(hookErr, context.Canceled) {
				plog.Info("Post-cycle hooks skipped due to cancellation", "pair", s.name)
				return
			}
			plog.Warn("Post-cycle hook failed", "pair", s.name, "error", hookErr)
		}()
	}

	if err := s.differ.Sync(ctx, s.pair); err != nil {
		return fmt.Errorf("sync pass failed: %w", err)
	}
	if err := s.differ.Mirror(ctx, s.pair); err != nil {
		return fmt.Errorf("mirror pass failed: %w", err)
	}
	return nil
}
