//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

// platformCheckWritable probes the directory with a temporary file. Windows
// ACLs are not reflected by the read-only attribute.
func platformCheckWritable(dirPath string) error {
	attrs, err := windows.GetFileAttributes(windows.StringToUTF16Ptr(dirPath))
	if err != nil {
		return fmt.Errorf("failed to read attributes: %w", err)
	}
	if attrs&windows.FILE_ATTRIBUTE_DIRECTORY == 0 {
		return fmt.Errorf("not a directory")
	}

	f, err := os.CreateTemp(dirPath, "."+buildinfo.BinaryName+"-writetest-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// isUnsafeRoot checks if the given path is the current directory or a drive root.
func isUnsafeRoot(path string) bool {
	if path == "." || path == string(filepath.Separator) {
		return true
	}
	// "C:", "C:." and "C:\" all name a whole drive. A UNC share root is
	// rejected too since its volume name equals the path.
	vol := filepath.VolumeName(path)
	if vol == "" {
		return false
	}
	rest := strings.TrimPrefix(path, vol)
	return rest == "" || rest == "." || rest == string(filepath.Separator)
}
