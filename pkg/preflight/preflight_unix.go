//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// platformCheckWritable asks the kernel instead of probing with a file, so the
// check leaves nothing behind in the replica.
func platformCheckWritable(dirPath string) error {
	return unix.Access(dirPath, unix.W_OK|unix.X_OK)
}

func isUnsafeRoot(path string) bool {
	return path == "/"
}
