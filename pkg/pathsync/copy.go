package pathsync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// tempFilePattern names the temporary copies written next to their final
// path. A copy interrupted by a crash leaves one behind; it has no source
// counterpart, so the next mirror pass removes it.
const tempFilePattern = buildinfo.BinaryName + "-*.tmp"

// copyBuffers is shared by every Differ in the process.
var copyBuffers = pool.NewCopyBuffers(4*1024, 1024*1024)

// copyFileSafe copies bytes, permission bits and modification time of a
// source file. It writes a temporary file first and renames it into place, so
// the final path never holds a partial copy.
func (t *task) copyFileSafe(absSrcPath, absTrgPath string, srcInfo lstatInfo) (err error) {
	in, err := os.Open(absSrcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", absSrcPath, err)
	}
	defer in.Close()

	absTrgDir := filepath.Dir(absTrgPath)
	out, err := os.CreateTemp(absTrgDir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", absTrgDir, err)
	}
	defer out.Close()

	absTempPath := out.Name()
	// Cleared after a successful rename.
	defer func() {
		if absTempPath != "" {
			os.Remove(absTempPath)
		}
	}()

	buf := copyBuffers.Get(srcInfo.Size)
	defer copyBuffers.Put(buf)
	// Hiding *os.File's WriteTo makes CopyBuffer use buf.
	if _, err := io.CopyBuffer(&metricWriter{w: out, metrics: t.metrics}, struct{ io.Reader }{in}, *buf); err != nil {
		return fmt.Errorf("failed to copy content from %s to %s: %w", absSrcPath, absTempPath, err)
	}

	// The owner must keep write access, otherwise a read-only source file
	// could never be updated in a later cycle.
	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode.Perm())); err != nil {
		return fmt.Errorf("failed to set permissions on temporary file %s: %w", absTempPath, err)
	}

	// Close before Chtimes: flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", absTempPath, err)
	}

	modTime := time.Unix(0, srcInfo.ModTime)
	if err := os.Chtimes(absTempPath, modTime, modTime); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", absTempPath, err)
	}

	if err := os.Rename(absTempPath, absTrgPath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", absTrgPath, err)
	}
	absTempPath = ""
	return nil
}
