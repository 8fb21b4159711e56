package pathsync

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// mirrorTask holds the mutable state of one delete pass.
type mirrorTask struct {
	task

	// orphanDirs holds every replica directory without a source counterpart.
	// Everything below an orphan directory is an orphan too, so its
	// descendants are not looked up in the source again.
	orphanDirs map[string]struct{}
}

func (t *mirrorTask) execute() error {
	plog.Debug("Mirror pass", "source", t.absSourcePath, "replica", t.absReplicaPath)

	t.metrics.StartProgress("Mirror progress", 10*time.Second)
	defer func() {
		t.metrics.StopProgress()
		t.metrics.LogSummary("Mirror pass finished")
	}()

	if err := t.checkRoots(); err != nil {
		return err
	}

	t.orphanDirs = make(map[string]struct{})
	if err := filepath.WalkDir(t.absReplicaPath, t.visit); err != nil {
		return fmt.Errorf("mirror pass of %s aborted: %w", t.absReplicaPath, err)
	}

	relPathKeyDirsToDelete := make([]string, 0, len(t.orphanDirs))
	for key := range t.orphanDirs {
		relPathKeyDirsToDelete = append(relPathKeyDirsToDelete, key)
	}
	sortLongestFirst(relPathKeyDirsToDelete)

	for _, relPathKey := range relPathKeyDirsToDelete {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		if err := t.removeDir(relPathKey); err != nil {
			// Excluded entries or entries that failed to delete keep the
			// directory alive. That is not a failure of the directory itself.
			if isDirNotEmpty(util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)) {
				logKeptDir(relPathKey, err)
				continue
			}
			t.fail("remove", relPathKey, err)
		}
	}
	return nil
}

func (t *mirrorTask) visit(absTrgPath string, d fs.DirEntry, walkErr error) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if absTrgPath == t.absReplicaPath {
		if walkErr != nil {
			return fmt.Errorf("cannot read replica root: %w", walkErr)
		}
		return nil
	}

	relPathKey, err := util.NormalizedRelPath(t.absReplicaPath, absTrgPath)
	if err != nil {
		return err
	}
	if walkErr != nil {
		t.fail("read", relPathKey, walkErr)
		return nil
	}

	// Excluded replica entries are never deleted, and neither is anything below them.
	if t.isExcluded(relPathKey, d.IsDir()) {
		t.metrics.AddEntriesExcluded(1)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	t.metrics.AddEntriesProcessed(1)

	orphan, err := t.isOrphan(relPathKey)
	if err != nil {
		t.fail("stat", relPathKey, err)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if !orphan {
		return nil
	}

	if d.IsDir() {
		t.orphanDirs[relPathKey] = struct{}{}
		return nil
	}
	if err := t.removeFile(relPathKey); err != nil {
		t.fail("remove", relPathKey, err)
	}
	return nil
}

// isOrphan reports whether relPathKey has no counterpart in the source.
// Only presence counts; the entry type is not compared.
func (t *mirrorTask) isOrphan(relPathKey string) (bool, error) {
	if _, ok := t.orphanDirs[path.Dir(relPathKey)]; ok {
		return true, nil
	}
	_, err := os.Lstat(util.DenormalizedAbsPath(t.absSourcePath, relPathKey))
	switch {
	case err == nil:
		return false, nil
	case isNotExist(err):
		return true, nil
	default:
		return false, err
	}
}
