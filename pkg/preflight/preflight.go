// Package preflight validates a synchronization pair and its log destination
// before the first cycle is scheduled. The checks never change the filesystem,
// except for the write probe on platforms without an access(2) call.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	return checkDirectory("source", srcPath)
}

// CheckReplicaAccessible validates that the replica path exists, is a
// directory and is not the root of a filesystem or drive.
func CheckReplicaAccessible(replicaPath string) error {
	if isUnsafeRoot(filepath.Clean(replicaPath)) {
		return fmt.Errorf("replica path %s is a filesystem root; refusing to mirror into it", replicaPath)
	}
	return checkDirectory("replica", replicaPath)
}

// CheckReplicaWritable ensures the current user may create and remove entries
// in the replica directory.
func CheckReplicaWritable(replicaPath string) error {
	if err := platformCheckWritable(replicaPath); err != nil {
		return fmt.Errorf("replica directory %s is not writable: %w", replicaPath, err)
	}
	return nil
}

// CheckPathNesting rejects pairs where one tree contains the other. Mirroring
// into a nested replica would copy the replica into itself on every cycle.
func CheckPathNesting(srcPath, replicaPath string) error {
	switch {
	case util.IsWithin(srcPath, replicaPath):
		return fmt.Errorf("replica %s must not be inside source %s", replicaPath, srcPath)
	case util.IsWithin(replicaPath, srcPath):
		return fmt.Errorf("source %s must not be inside replica %s", srcPath, replicaPath)
	}
	return nil
}

// CheckLogOutsideTrees rejects a log file inside either tree. Inside the
// replica the mirror pass would delete it; inside the source every cycle
// would copy it again.
func CheckLogOutsideTrees(logPath, srcPath, replicaPath string) error {
	if util.IsWithin(replicaPath, logPath) {
		return fmt.Errorf("log file %s must not be inside replica %s", logPath, replicaPath)
	}
	if util.IsWithin(srcPath, logPath) {
		return fmt.Errorf("log file %s must not be inside source %s", logPath, srcPath)
	}
	return nil
}

// CheckPair runs every pair check in order and returns the first failure.
// Both paths must be absolute.
func CheckPair(srcPath, replicaPath string) error {
	if !filepath.IsAbs(srcPath) || !filepath.IsAbs(replicaPath) {
		return errors.New("source and replica paths must be absolute")
	}
	if err := CheckSourceAccessible(srcPath); err != nil {
		return err
	}
	if err := CheckReplicaAccessible(replicaPath); err != nil {
		return err
	}
	if err := CheckPathNesting(srcPath, replicaPath); err != nil {
		return err
	}
	return CheckReplicaWritable(replicaPath)
}

func checkDirectory(role, dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s directory %s does not exist", role, dirPath)
		}
		return fmt.Errorf("cannot stat %s directory %s: %w", role, dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path %s is not a directory", role, dirPath)
	}
	return nil
}
