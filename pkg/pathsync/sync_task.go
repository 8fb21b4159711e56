package pathsync

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// syncTask holds the mutable state of one create and update pass.
type syncTask struct {
	task
}

func (t *syncTask) execute() error {
	plog.Debug("Sync pass", "source", t.absSourcePath, "replica", t.absReplicaPath)

	t.metrics.StartProgress("Sync progress", 10*time.Second)
	defer func() {
		t.metrics.StopProgress()
		t.metrics.LogSummary("Sync pass finished")
	}()

	if err := t.checkRoots(); err != nil {
		return err
	}
	if err := filepath.WalkDir(t.absSourcePath, t.visit); err != nil {
		return fmt.Errorf("sync pass of %s aborted: %w", t.absSourcePath, err)
	}
	return nil
}

// visit is called by filepath.WalkDir in lexical, top-down order.
func (t *syncTask) visit(absSrcPath string, d fs.DirEntry, walkErr error) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if absSrcPath == t.absSourcePath {
		if walkErr != nil {
			return fmt.Errorf("cannot read source root: %w", walkErr)
		}
		return nil
	}

	relPathKey, err := util.NormalizedRelPath(t.absSourcePath, absSrcPath)
	if err != nil {
		return err
	}
	if walkErr != nil {
		// The directory itself was handled; only its listing failed.
		t.fail("read", relPathKey, walkErr)
		return nil
	}

	if t.isExcluded(relPathKey, d.IsDir()) {
		t.metrics.AddEntriesExcluded(1)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	t.metrics.AddEntriesProcessed(1)

	info, err := d.Info()
	if err != nil {
		t.fail("stat", relPathKey, err)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	srcInfo := newLstatInfo(info)

	switch {
	case srcInfo.IsDir:
		if err := t.syncDirectory(relPathKey, srcInfo); err != nil {
			t.fail("mkdir", relPathKey, err)
			return filepath.SkipDir
		}
	case srcInfo.IsRegular:
		if err := t.syncFile(absSrcPath, relPathKey, srcInfo); err != nil {
			t.fail("copy", relPathKey, err)
		}
	default:
		t.metrics.AddEntriesSkipped(1)
		plog.Debug("Skipping unsupported entry type", "path", relPathKey, "type", srcInfo.Mode.Type())
	}
	return nil
}

// syncDirectory makes sure a directory exists at relPathKey in the replica.
// A non-directory in its place is removed first.
func (t *syncTask) syncDirectory(relPathKey string, srcInfo lstatInfo) error {
	absTrgPath := util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)

	trgInfo, err := lstat(absTrgPath)
	switch {
	case err == nil && trgInfo.IsDir:
		return nil
	case err == nil:
		plog.Notice("Replacing file with directory", "path", relPathKey)
		if err := t.removeFile(relPathKey); err != nil {
			return err
		}
	case !isNotExist(err):
		return fmt.Errorf("failed to stat %s: %w", absTrgPath, err)
	}

	// The owner keeps full access so the next cycle can still list, populate
	// and prune the directory, even when the source one is locked down.
	if err := os.Mkdir(absTrgPath, util.WithUserFullPermission(srcInfo.Mode.Perm())); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absTrgPath, err)
	}
	t.metrics.AddDirsCreated(1)
	t.record(auditlog.Created, auditlog.Folder, relPathKey)
	return nil
}

// syncFile copies the source file when the replica has none or its
// modification time differs.
func (t *syncTask) syncFile(absSrcPath, relPathKey string, srcInfo lstatInfo) error {
	absTrgPath := util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)

	action := auditlog.Created
	trgInfo, err := lstat(absTrgPath)
	switch {
	case isNotExist(err):
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", absTrgPath, err)
	case trgInfo.IsRegular:
		if t.sameModTime(srcInfo.ModTime, trgInfo.ModTime) {
			t.metrics.AddFilesUpToDate(1)
			return nil
		}
		action = auditlog.Updated
	case trgInfo.IsDir:
		plog.Notice("Replacing directory with file", "path", relPathKey)
		if err := t.pruneTree(relPathKey); err != nil {
			return err
		}
	default:
		// Links and special files are replaced by the rename in copyFileSafe.
		action = auditlog.Updated
	}

	if err := t.copyFileSafe(absSrcPath, absTrgPath, srcInfo); err != nil {
		return err
	}
	if action == auditlog.Created {
		t.metrics.AddFilesCreated(1)
	} else {
		t.metrics.AddFilesUpdated(1)
	}
	t.record(action, auditlog.File, relPathKey)
	return nil
}

// sameModTime compares two Unix nano timestamps after truncating both to the
// configured window. Any difference counts, in either direction.
func (t *syncTask) sameModTime(a, b int64) bool {
	if t.modTimeWindow <= 0 {
		return a == b
	}
	return time.Unix(0, a).Truncate(t.modTimeWindow).Equal(time.Unix(0, b).Truncate(t.modTimeWindow))
}
