package cmd_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulschiretz/pgl-mirror/cmd"
	"github.com/paulschiretz/pgl-mirror/pkg/auditlog"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
)

type testEnv struct {
	src    string
	rep    string
	logDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	base := t.TempDir()
	env := testEnv{
		src:    filepath.Join(base, "source"),
		rep:    filepath.Join(base, "replica"),
		logDir: filepath.Join(base, "logs"),
	}
	for _, dir := range []string{env.src, env.rep, env.logDir} {
		require.NoError(t, os.Mkdir(dir, 0755))
	}
	return env
}

// execute runs the root command with args and returns its error.
func execute(t *testing.T, ctx context.Context, args ...string) error {
	t.Helper()
	root := cmd.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(ctx)
}

func readLog(t *testing.T, logDir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, auditlog.FileName))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestRunMirror_Once(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(env.src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.src, "sub", "a.txt"), []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.src, "skip.bak"), []byte("skip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.rep, "stale.txt"), []byte("stale"), 0644))

	err := execute(t, context.Background(), "run", "--once", "--no-color",
		"--source", env.src,
		"--replica", env.rep,
		"--log", env.logDir,
		"--exclude-files", "*.bak")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(env.rep, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	assert.NoFileExists(t, filepath.Join(env.rep, "skip.bak"))
	assert.NoFileExists(t, filepath.Join(env.rep, "stale.txt"))

	log := readLog(t, env.logDir)
	assert.Contains(t, log, "Synchronization started")
	assert.Contains(t, log, "Source folder: "+env.src)
	assert.Contains(t, log, "Replica folder: "+env.rep)
	assert.Contains(t, log, "CREATED Folder: sub")
	assert.Contains(t, log, "CREATED File: sub/a.txt")
	assert.Contains(t, log, "REMOVED File: stale.txt")
	assert.Contains(t, log, "Synchronization finished")
	assert.Less(t, strings.Index(log, "CREATED Folder: sub"), strings.Index(log, "CREATED File: sub/a.txt"))

	t.Run("Second run appends only the markers", func(t *testing.T) {
		require.NoError(t, execute(t, context.Background(), "run", "--once", "--source", env.src, "--replica", env.rep, "--log", env.logDir, "--exclude-files", "*.bak"))
		log := readLog(t, env.logDir)
		assert.Equal(t, 2, strings.Count(log, "Synchronization finished"))
		assert.Equal(t, 1, strings.Count(log, "CREATED File: sub/a.txt"))
	})
}

func TestRunMirror_ConfigFileWithTwoPairs(t *testing.T) {
	first := newTestEnv(t)
	second := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(first.src, "one.txt"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(second.src, "two.txt"), []byte("2"), 0644))

	cfg := config.NewDefault()
	cfg.Pairs = []config.PairConfig{
		{Name: "first", Source: first.src, Replica: first.rep, IntervalMinutes: 1, LogPath: first.logDir},
		// Both pairs share one log destination.
		{Name: "second", Source: second.src, Replica: second.rep, IntervalMinutes: 1, LogPath: first.logDir},
	}
	configPath := filepath.Join(t.TempDir(), config.ConfigFileName)
	require.NoError(t, config.Generate(configPath, cfg, false))

	require.NoError(t, execute(t, context.Background(), "run", "--once", "--config", configPath))

	assert.FileExists(t, filepath.Join(first.rep, "one.txt"))
	assert.FileExists(t, filepath.Join(second.rep, "two.txt"))

	log := readLog(t, first.logDir)
	assert.Equal(t, 2, strings.Count(log, "Synchronization finished"))
	assert.Contains(t, log, "CREATED File: one.txt")
	assert.Contains(t, log, "CREATED File: two.txt")
}

func TestRunMirror_UntilCancelled(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.src, "a.txt"), []byte("alpha"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- execute(t, ctx, "run", "--source", env.src, "--replica", env.rep, "--log", env.logDir, "--interval", "1")
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(readLog(t, env.logDir), "Synchronization finished")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assert.FileExists(t, filepath.Join(env.rep, "a.txt"))
}

func TestRunMirror_ReplicaLocked(t *testing.T) {
	env := newTestEnv(t)

	lock, err := lockfile.Acquire(context.Background(), env.rep, "other-instance")
	require.NoError(t, err)
	defer lock.Release()

	err = execute(t, context.Background(), "run", "--once", "--source", env.src, "--replica", env.rep, "--log", env.logDir)
	require.Error(t, err)
	var lockErr *lockfile.ErrLockActive
	assert.True(t, errors.As(err, &lockErr), "expected *lockfile.ErrLockActive, got %T: %v", err, err)
}

func TestRunMirror_ConfigurationErrors(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name string
		args []string
	}{
		{"No pairs", []string{}},
		{"Missing log", []string{"--source", env.src, "--replica", env.rep}},
		{"Missing source folder", []string{"--source", filepath.Join(env.src, "missing"), "--replica", env.rep, "--log", env.logDir}},
		{"Missing replica folder", []string{"--source", env.src, "--replica", filepath.Join(env.rep, "missing"), "--log", env.logDir}},
		{"Zero interval", []string{"--source", env.src, "--replica", env.rep, "--log", env.logDir, "--interval", "0"}},
		{"Log parent missing", []string{"--source", env.src, "--replica", env.rep, "--log", filepath.Join(env.logDir, "missing", "x.log")}},
		{"Log inside replica", []string{"--source", env.src, "--replica", env.rep, "--log", env.rep}},
		{"Nested trees", []string{"--source", filepath.Dir(env.src), "--replica", env.rep, "--log", t.TempDir()}},
		{"Missing config file", []string{"--config", filepath.Join(t.TempDir(), "missing.json")}},
		{"Invalid log level", []string{"--source", env.src, "--replica", env.rep, "--log", env.logDir, "--log-level", "loud"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"run", "--once"}, tc.args...)
			assert.Error(t, execute(t, context.Background(), args...))
		})
	}
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	root := cmd.NewRootCommand()
	root.SetArgs([]string{"version"})
	root.SetOut(&buf)
	require.NoError(t, root.Execute())
	assert.Regexp(t, `^PGL-Mirror version \S+\n$`, buf.String())
}
