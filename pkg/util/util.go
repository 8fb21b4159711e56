package util

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// PermUserRead is the user-read permission bit (0400).
	PermUserRead os.FileMode = 0400
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200
	// PermUserExecute is the user-execute permission bit (0100).
	PermUserExecute os.FileMode = 0100

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This keeps the replica writable for the next cycle even when the
// source entry is read-only.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// WithUserFullPermission sets all owner bits (0700). Replica directories get
// them so the owner can always list, populate and prune them.
func WithUserFullPermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserRead | PermUserWrite | PermUserExecute
}

// IsHostCaseInsensitiveFS checks if the current operating system (the "host") has a case-insensitive filesystem by default.
func IsHostCaseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// AbsPath expands a leading tilde and returns the cleaned absolute form of path.
func AbsPath(path string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", path, err)
	}
	return abs, nil
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// MergeAndDeduplicate combines multiple string slices into a single sorted slice
// without duplicates.
func MergeAndDeduplicate(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, list := range lists {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			result = append(result, item)
		}
	}
	slices.Sort(result)
	return result
}

// NormalizePath converts an OS specific relative path into the forward-slash key
// used to identify an entry in both trees. The root itself is ".".
func NormalizePath(relPath string) string {
	key := filepath.ToSlash(filepath.Clean(relPath))
	if key == "" {
		return "."
	}
	return key
}

// DenormalizePath converts a forward-slash key back into the OS specific form.
func DenormalizePath(relPathKey string) string {
	return filepath.FromSlash(relPathKey)
}

// NormalizedRelPath returns the relative path key of absPath below absRoot.
func NormalizedRelPath(absRoot, absPath string) (string, error) {
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path of %s below %s: %w", absPath, absRoot, err)
	}
	return NormalizePath(rel), nil
}

// DenormalizedAbsPath joins a relative path key onto an absolute root.
func DenormalizedAbsPath(absRoot, relPathKey string) string {
	return filepath.Join(absRoot, DenormalizePath(relPathKey))
}

// IsWithin reports whether absPath equals absRoot or is nested below it.
// Both paths must be absolute and cleaned.
func IsWithin(absRoot, absPath string) bool {
	if IsHostCaseInsensitiveFS() {
		absRoot = strings.ToLower(absRoot)
		absPath = strings.ToLower(absPath)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
