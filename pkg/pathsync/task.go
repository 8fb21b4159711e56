package pathsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// task holds the state shared by both passes of a single run.
type task struct {
	*Differ

	ctx context.Context

	absSourcePath  string
	absReplicaPath string

	metrics Metrics
}

func (t *task) record(action auditlog.Action, kind auditlog.Kind, relPathKey string) {
	t.rec.Record(auditlog.Event{Action: action, Kind: kind, RelPath: relPathKey})
}

func (t *task) fail(op, relPathKey string, err error) {
	t.metrics.AddEntryFailures(1)
	t.rec.Failure(op, relPathKey, err)
}

// isExcluded matches the key and its basename against the file or dir patterns.
func (t *task) isExcluded(relPathKey string, isDir bool) bool {
	set := &t.fileExclusions
	if isDir {
		set = &t.dirExclusions
	}
	if set.isEmpty() {
		return false
	}
	return set.matches(relPathKey, path.Base(relPathKey))
}

// checkRoots fails the pass when either root is not a readable directory.
func (t *task) checkRoots() error {
	for _, root := range []string{t.absSourcePath, t.absReplicaPath} {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("could not stat root %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("root %s is not a directory", root)
		}
	}
	return nil
}

// removeFile removes a non-directory replica entry and reports it as a File.
func (t *task) removeFile(relPathKey string) error {
	absPath := util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("failed to remove file %s: %w", absPath, err)
	}
	t.metrics.AddFilesRemoved(1)
	t.record(auditlog.Removed, auditlog.File, relPathKey)
	return nil
}

// removeDir removes an empty replica directory.
func (t *task) removeDir(relPathKey string) error {
	absPath := util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", absPath, err)
	}
	t.metrics.AddDirsRemoved(1)
	t.record(auditlog.Removed, auditlog.Folder, relPathKey)
	return nil
}

// pruneTree removes the replica directory at relPathKey with everything below
// it. Files are removed during the walk, directories afterwards, longest first.
func (t *task) pruneTree(relPathKey string) error {
	absRoot := util.DenormalizedAbsPath(t.absReplicaPath, relPathKey)
	var dirs []string
	err := filepath.WalkDir(absRoot, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		key, err := util.NormalizedRelPath(t.absReplicaPath, absPath)
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, key)
			return nil
		}
		return t.removeFile(key)
	})
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", absRoot, err)
	}

	sortLongestFirst(dirs)
	for _, key := range dirs {
		if err := t.removeDir(key); err != nil {
			return err
		}
	}
	return nil
}

// sortLongestFirst orders keys so a child always comes before its parent.
// A child key is strictly longer than its parent key.
func sortLongestFirst(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// isDirNotEmpty reports whether absPath is a directory that still has entries.
func isDirNotEmpty(absPath string) bool {
	f, err := os.Open(absPath)
	if err != nil {
		return false
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err == nil
}

// lstat wraps os.Lstat and converts the result.
func lstat(absPath string) (lstatInfo, error) {
	info, err := os.Lstat(absPath)
	if err != nil {
		return lstatInfo{}, err
	}
	return newLstatInfo(info), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// metricWriter wraps an io.Writer and counts the bytes written.
type metricWriter struct {
	w       io.Writer
	metrics Metrics
}

func (mw *metricWriter) Write(p []byte) (n int, err error) {
	n, err = mw.w.Write(p)
	if n > 0 {
		mw.metrics.AddBytesWritten(int64(n))
	}
	return
}

// logKeptDir explains why an orphan directory survived the mirror pass.
func logKeptDir(relPathKey string, err error) {
	plog.Debug("Directory removal skipped (not empty)", "path", relPathKey, "error", err)
}
