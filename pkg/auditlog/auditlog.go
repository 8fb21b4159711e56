// Package auditlog writes the audit trail of a mirror: one line per created,
// updated or removed replica entry plus the cycle markers. Every record goes
// to the console and to an append-only log file.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lmittmann/tint"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// TimeFormat is the timestamp layout of every audit line.
const TimeFormat = "2006-01-02 15:04:05"

// FileName is the name of the log file created when the destination is a folder.
const FileName = buildinfo.BinaryName + ".log"

// ResolvePath turns a log destination into the path of the log file.
// An existing folder yields <folder>/pgl-mirror.log; anything else must be a
// file path whose parent folder exists.
func ResolvePath(dest string) (string, error) {
	if dest == "" {
		return "", errors.New("log destination cannot be empty")
	}
	abs, err := util.AbsPath(dest)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(abs, FileName), nil
	case err == nil && !info.Mode().IsRegular():
		return "", fmt.Errorf("log destination %s is neither a folder nor a regular file", abs)
	case err == nil:
		return abs, nil
	case !os.IsNotExist(err):
		return "", fmt.Errorf("cannot access log destination %s: %w", abs, err)
	}

	parent := filepath.Dir(abs)
	pinfo, err := os.Stat(parent)
	if err != nil {
		return "", fmt.Errorf("parent folder of log file %s does not exist: %w", abs, err)
	}
	if !pinfo.IsDir() {
		return "", fmt.Errorf("parent of log file %s is not a folder", abs)
	}
	return abs, nil
}

type options struct {
	console io.Writer
	noColor bool
}

// Option configures a Logger.
type Option func(*options)

// WithConsole sets the console writer. A nil writer disables the console copy.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithNoColor disables colors on the console copy even when it is a terminal.
func WithNoColor() Option {
	return func(o *options) { o.noColor = true }
}

// Logger is the audit sink of one log destination. It is safe for concurrent
// use, so pairs that share a destination share one Logger.
type Logger struct {
	path string
	file *os.File
	log  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open resolves dest, opens the log file in append mode and returns a Logger
// writing to it and to the console.
func Open(dest string, opts ...Option) (*Logger, error) {
	o := options{console: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	path, err := ResolvePath(dest)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	handlers := []slog.Handler{newHandler(f, true)}
	if o.console != nil {
		handlers = append(handlers, newHandler(o.console, o.noColor || !plog.IsTerminal(o.console)))
	}

	return &Logger{
		path: path,
		file: f,
		log:  slog.New(plog.NewMultiHandler(handlers...)),
	}, nil
}

func newHandler(w io.Writer, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       slog.LevelInfo,
		TimeFormat:  TimeFormat,
		NoColor:     noColor,
		ReplaceAttr: dropInfoLevel,
	})
}

// dropInfoLevel keeps audit lines in the "<time> <message>" shape. Only
// warnings and errors carry a level token.
func dropInfoLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slog.LevelInfo {
		return slog.Attr{}
	}
	return plog.ReplaceLevelName(groups, a)
}

// Path returns the absolute path of the log file.
func (l *Logger) Path() string { return l.path }

// Record writes one audit event.
func (l *Logger) Record(e Event) {
	l.log.Info(e.String())
}

// Failure writes a warning for an entry that was skipped.
func (l *Logger) Failure(op, relPath string, err error) {
	l.log.Warn("Skipped entry", "op", op, "path", relPath, tint.Err(err))
}

// CycleStarted writes the start marker of a synchronization cycle.
func (l *Logger) CycleStarted(source, replica string) {
	l.log.Info("Synchronization started")
	l.log.Info("Source folder: " + source)
	l.log.Info("Replica folder: " + replica)
}

// CycleFinished writes the end marker of a synchronization cycle.
func (l *Logger) CycleFinished() {
	l.log.Info("Synchronization finished")
}

// CycleFailed writes a cycle-level error. The next cycle is still scheduled.
func (l *Logger) CycleFailed(err error) {
	l.log.Error("Synchronization failed", tint.Err(err))
}

// Info writes a free-form line on the audit log.
func (l *Logger) Info(msg string, args ...any) {
	l.log.Log(context.Background(), slog.LevelInfo, msg, args...)
}

// Close closes the log file. It is safe to call more than once.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.file.Close()
	})
	return l.closeErr
}
