// Package planner turns a validated configuration into one plan per
// synchronization pair.
package planner

import (
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
)

type PairPlan struct {
	Name     string
	Pair     pathsync.Pair
	Interval time.Duration
	// LogPath is the resolved path of the audit log file.
	LogPath string

	Sync  *pathsync.Plan
	Hooks *hook.Plan
}

// GeneratePairPlans builds the plans of all pairs in cfg. cfg must have been
// validated. The log destination of every pair is resolved and checked to lie
// outside both trees of the pair.
func GeneratePairPlans(cfg config.Config) ([]*PairPlan, error) {
	plans := make([]*PairPlan, 0, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		pair, err := pathsync.NewPair(pc.Source, pc.Replica)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", pc.Name, err)
		}

		logPath, err := auditlog.ResolvePath(pc.LogPath)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", pc.Name, err)
		}
		if err := preflight.CheckLogOutsideTrees(logPath, pair.Source, pair.Replica); err != nil {
			return nil, fmt.Errorf("pair %s: %w", pc.Name, err)
		}

		plans = append(plans, &PairPlan{
			Name:     pc.Name,
			Pair:     pair,
			Interval: pc.Interval(),
			LogPath:  logPath,
			Sync: &pathsync.Plan{
				ModTimeWindow: cfg.Sync.ModTimeWindow(),
				ExcludeFiles:  cfg.Sync.ExcludeFiles,
				ExcludeDirs:   cfg.Sync.ExcludeDirs,
				Metrics:       cfg.Sync.Metrics,
			},
			Hooks: &hook.Plan{
				Enabled:           len(cfg.Hooks.PreCycle) > 0 || len(cfg.Hooks.PostCycle) > 0,
				PreCycleCommands:  cfg.Hooks.PreCycle,
				PostCycleCommands: cfg.Hooks.PostCycle,
				FailFast:          cfg.Hooks.FailFast,
			},
		})
	}
	return plans, nil
}
