package pathsync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// baseTime is a whole second so every filesystem stores it exactly.
var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// helper to create a file with specific content and mod time.
func createFile(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

// helper to create a directory.
func createDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0755))
}

// helper to check if a path exists.
func pathExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err), "unexpected error checking path %s: %v", path, err)
	return false
}

// helper to get file content.
func getFileContent(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

// helper to get file mod time.
func getFileModTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

// treeEntry is what convergence compares for one relative entry.
type treeEntry struct {
	IsDir   bool
	Content string
	ModTime int64
}

// snapshotTree returns every entry below root keyed by its relative path.
func snapshotTree(t *testing.T, root string) map[string]treeEntry {
	t.Helper()
	entries := make(map[string]treeEntry)
	err := filepath.WalkDir(root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if absPath == root {
			return nil
		}
		key, err := util.NormalizedRelPath(root, absPath)
		if err != nil {
			return err
		}
		if d.IsDir() {
			entries[key] = treeEntry{IsDir: true}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			return err
		}
		entries[key] = treeEntry{Content: string(content), ModTime: info.ModTime().UnixNano()}
		return nil
	})
	require.NoError(t, err)
	return entries
}

// testEnv is a source and replica pair with an in-memory recorder.
type testEnv struct {
	pair   Pair
	rec    *auditlog.Memory
	differ *Differ
}

func newTestEnv(t *testing.T, plan *Plan) *testEnv {
	t.Helper()
	base := t.TempDir()
	src := filepath.Join(base, "source")
	rep := filepath.Join(base, "replica")
	createDir(t, src)
	createDir(t, rep)

	pair, err := NewPair(src, rep)
	require.NoError(t, err)

	rec := &auditlog.Memory{}
	return &testEnv{pair: pair, rec: rec, differ: NewDiffer(plan, rec)}
}

func (e *testEnv) src(rel string) string {
	return util.DenormalizedAbsPath(e.pair.Source, rel)
}

func (e *testEnv) rep(rel string) string {
	return util.DenormalizedAbsPath(e.pair.Replica, rel)
}

// cycle runs one reconcile and returns the events it produced.
func (e *testEnv) cycle(t *testing.T) []auditlog.Event {
	t.Helper()
	e.rec.Reset()
	require.NoError(t, e.differ.Reconcile(context.Background(), e.pair))
	return e.rec.Events()
}

func created(kind auditlog.Kind, rel string) auditlog.Event {
	return auditlog.Event{Action: auditlog.Created, Kind: kind, RelPath: rel}
}

func updated(rel string) auditlog.Event {
	return auditlog.Event{Action: auditlog.Updated, Kind: auditlog.File, RelPath: rel}
}

func removed(kind auditlog.Kind, rel string) auditlog.Event {
	return auditlog.Event{Action: auditlog.Removed, Kind: kind, RelPath: rel}
}

// indexOf returns the position of the event in events, or -1.
func indexOf(events []auditlog.Event, e auditlog.Event) int {
	for i, got := range events {
		if got == e {
			return i
		}
	}
	return -1
}
