// Package lockfile makes sure only one process on a host mirrors into a given
// replica. The lock is an OS file lock on a file in the temp directory, so it
// is released by the OS when the holding process dies.
package lockfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// lockFilePrefix marks lock files as belonging to this tool. The '~' marks
// them as temporary.
const lockFilePrefix = ".~" + buildinfo.BinaryName + "-"

// lockDir is a var to allow modification during testing.
var lockDir = os.TempDir

// LockContent describes the holder of a lock. It is written into the lock file
// for diagnostics only; the OS lock is the source of truth.
type LockContent struct {
	PID      int64     `json:"pid"`
	Hostname string    `json:"hostname"`
	AppID    string    `json:"appID"`
	Replica  string    `json:"replica"`
	Acquired time.Time `json:"acquired"`
}

// ErrLockActive is returned when another process holds the lock of a replica.
// The holder fields are zero when the lock file could not be read.
type ErrLockActive struct {
	Replica   string
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("replica %s is locked by another process", e.Replica)
	}
	return fmt.Sprintf("replica %s is locked by PID %d on host '%s' (App: %s), acquired %s ago",
		e.Replica, e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// Lock is a held replica lock.
type Lock struct {
	path  string
	flock *flock.Flock

	mu   sync.Mutex
	held bool
}

// PathFor returns the lock file path guarding absReplicaPath.
func PathFor(absReplicaPath string) string {
	key := filepath.Clean(absReplicaPath)
	if util.IsHostCaseInsensitiveFS() {
		key = strings.ToLower(key)
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(lockDir(), lockFilePrefix+hex.EncodeToString(sum[:8])+".lock")
}

// Acquire takes the lock of absReplicaPath without blocking.
// It returns (nil, *ErrLockActive) if the lock is already held.
func Acquire(ctx context.Context, absReplicaPath, appID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := PathFor(absReplicaPath)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock replica %s: %w", absReplicaPath, err)
	}
	if !locked {
		lockErr := &ErrLockActive{Replica: absReplicaPath}
		if content, readErr := readLockContent(path); readErr == nil {
			lockErr.PID = content.PID
			lockErr.Hostname = content.Hostname
			lockErr.AppID = content.AppID
			lockErr.TimeSince = time.Since(content.Acquired)
		}
		return nil, lockErr
	}

	hostname, _ := os.Hostname()
	content := LockContent{
		PID:      int64(os.Getpid()),
		Hostname: hostname,
		AppID:    appID,
		Replica:  absReplicaPath,
		Acquired: time.Now().UTC(),
	}
	// Some platforms refuse writes through a second handle while the region
	// is locked. The lock still holds in that case.
	if err := writeLockContent(path, content); err != nil {
		plog.Debug("Could not write lock file content", "path", path, "error", err)
	}

	plog.Debug("Replica lock acquired", "replica", absReplicaPath, "path", path)
	return &Lock{path: path, flock: fl, held: true}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks the replica. It is safe to call more than once. The lock
// file stays in place so every instance locks the same file.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return nil
}

func writeLockContent(path string, content LockContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, util.UserWritableFilePerms)
}

func readLockContent(path string) (LockContent, error) {
	var content LockContent
	data, err := os.ReadFile(path)
	if err != nil {
		return content, err
	}
	if len(data) == 0 {
		return content, errors.New("lock file is empty")
	}
	if err := json.Unmarshal(data, &content); err != nil {
		return content, fmt.Errorf("lock file is corrupt: %w", err)
	}
	return content, nil
}
