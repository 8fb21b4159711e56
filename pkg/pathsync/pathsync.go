// Package pathsync reconciles a replica directory tree with its source tree.
//
// A Differ runs two passes per cycle. The sync pass walks the source top-down
// and creates or updates replica entries, so a parent folder always exists
// before its children are visited. The mirror pass walks the replica and
// removes every entry without a source counterpart; orphan files go during the
// walk and orphan folders afterwards, longest path first, so children are
// always removed before their parents.
//
// Modification time is the only change signal. Every mutation is reported to
// an auditlog.Recorder after it succeeded. A failure on one entry is reported
// and skipped; only an unusable root fails a pass.
package pathsync

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Pair is a source tree and the replica mirrored from it. Both paths are
// absolute and cleaned.
type Pair struct {
	Source  string
	Replica string
}

// NewPair makes both paths absolute. It does not touch the filesystem.
func NewPair(source, replica string) (Pair, error) {
	absSource, err := util.AbsPath(source)
	if err != nil {
		return Pair{}, fmt.Errorf("invalid source path: %w", err)
	}
	absReplica, err := util.AbsPath(replica)
	if err != nil {
		return Pair{}, fmt.Errorf("invalid replica path: %w", err)
	}
	return Pair{Source: absSource, Replica: absReplica}, nil
}

func (p Pair) String() string {
	return p.Source + " -> " + p.Replica
}

// Differ applies the sync and mirror passes for a pair. It keeps no state
// between calls; each pass gets its own task.
type Differ struct {
	rec            auditlog.Recorder
	modTimeWindow  time.Duration
	fileExclusions exclusionSet
	dirExclusions  exclusionSet
	metrics        bool
}

// NewDiffer creates a Differ reporting to rec. A nil plan means defaults.
func NewDiffer(plan *Plan, rec auditlog.Recorder) *Differ {
	if plan == nil {
		plan = &Plan{}
	}
	return &Differ{
		rec:            rec,
		modTimeWindow:  plan.ModTimeWindow,
		fileExclusions: makeExclusionSet(plan.ExcludeFiles),
		dirExclusions:  makeExclusionSet(plan.ExcludeDirs),
		metrics:        plan.Metrics,
	}
}

func (d *Differ) newTask(ctx context.Context, pair Pair) task {
	var m Metrics = &NoopMetrics{}
	if d.metrics {
		m = &SyncMetrics{}
	}
	return task{
		Differ:         d,
		ctx:            ctx,
		absSourcePath:  pair.Source,
		absReplicaPath: pair.Replica,
		metrics:        m,
	}
}

// Sync runs the create and update pass: every source entry missing from the
// replica is created and every file whose modification time differs is
// overwritten.
func (d *Differ) Sync(ctx context.Context, pair Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &syncTask{task: d.newTask(ctx, pair)}
	return t.execute()
}

// Mirror runs the delete pass: every replica entry whose source counterpart
// does not exist is removed.
func (d *Differ) Mirror(ctx context.Context, pair Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &mirrorTask{task: d.newTask(ctx, pair)}
	return t.execute()
}

// Reconcile runs Sync followed by Mirror.
func (d *Differ) Reconcile(ctx context.Context, pair Pair) error {
	if err := d.Sync(ctx, pair); err != nil {
		return err
	}
	return d.Mirror(ctx, pair)
}
