package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/scheduler"
)

// RunOptions are the run settings that are not part of the configuration.
type RunOptions struct {
	ConfigPath string
	// Once runs a single cycle per pair and returns.
	Once bool
	// NoColor disables colors on the console copy of the audit log.
	NoColor bool
}

// RunMirror loads the configuration, overlays flagMap and mirrors every
// configured pair until ctx is cancelled.
func RunMirror(ctx context.Context, opts RunOptions, flagMap map[string]any) error {
	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())

	loadedConfig, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	runConfig := config.MergeFlags(loadedConfig, flagMap)

	// CRITICAL: Validate the config before anything touches the filesystem.
	if err := runConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := plog.LevelFromString(runConfig.LogLevel)
	plog.SetLevel(level)
	runConfig.LogSummary()

	plans, err := planner.GeneratePairPlans(runConfig)
	if err != nil {
		return err
	}

	// Ensure exclusive access to every replica on this host.
	for _, plan := range plans {
		appID := fmt.Sprintf("%s-run:%s", buildinfo.BinaryName, plan.Name)
		lock, err := lockfile.Acquire(ctx, plan.Pair.Replica, appID)
		if err != nil {
			return fmt.Errorf("failed to acquire lock on replica: %w", err)
		}
		defer lock.Release()
	}

	sinks, err := openSinks(plans, opts.NoColor)
	if err != nil {
		return err
	}
	defer sinks.Close()

	executor := hook.NewHookExecutor(nil)
	schedulers := make([]*scheduler.Scheduler, 0, len(plans))
	for _, plan := range plans {
		sink := sinks[plan.LogPath]
		s, err := scheduler.New(plan.Pair, plan.Interval, pathsync.NewDiffer(plan.Sync, sink), sink,
			scheduler.WithName(plan.Name),
			scheduler.WithHooks(executor, plan.Hooks))
		if err != nil {
			return fmt.Errorf("pair %s: %w", plan.Name, err)
		}
		schedulers = append(schedulers, s)
	}

	startTime := time.Now()
	if opts.Once {
		// Every pair completes its cycle even when another one fails.
		var g errgroup.Group
		for _, s := range schedulers {
			s := s // per-iteration copy (go < 1.22 loop semantics)
			g.Go(func() error { return s.RunCycle(ctx) })
		}
		err = g.Wait()
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range schedulers {
			s := s // per-iteration copy (go < 1.22 loop semantics)
			g.Go(func() error { return s.Run(gctx) })
		}
		err = g.Wait()
	}
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// sinkSet maps resolved log paths to their audit loggers. Pairs naming the
// same destination share one logger.
type sinkSet map[string]*auditlog.Logger

func openSinks(plans []*planner.PairPlan, noColor bool) (sinkSet, error) {
	var opts []auditlog.Option
	if noColor {
		opts = append(opts, auditlog.WithNoColor())
	}
	sinks := make(sinkSet)
	for _, plan := range plans {
		if _, ok := sinks[plan.LogPath]; ok {
			continue
		}
		sink, err := auditlog.Open(plan.LogPath, opts...)
		if err != nil {
			sinks.Close()
			return nil, fmt.Errorf("pair %s: %w", plan.Name, err)
		}
		sinks[plan.LogPath] = sink
	}
	return sinks, nil
}

// Close closes every logger and returns the joined errors.
func (s sinkSet) Close() error {
	var errs []error
	for _, sink := range s {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
