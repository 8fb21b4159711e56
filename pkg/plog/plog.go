// Package plog is the process-wide diagnostic logger. It reports configuration,
// cycle statistics and hook output. Audit records of the mirror itself are
// written by pkg/auditlog, never through this package.
package plog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Log levels. LevelNotice sits between Debug and Info and is used for per-entry
// detail that is useful while watching a run but too chatty for Info.
const (
	LevelDebug  = slog.LevelDebug
	LevelNotice = slog.Level(-2)
	LevelInfo   = slog.LevelInfo
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

var levelNames = map[slog.Level]string{
	LevelDebug:  "DEBUG",
	LevelNotice: "NOTICE",
	LevelInfo:   "INFO",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
}

// LevelFromString parses a level name (case-insensitive).
func LevelFromString(s string) (slog.Level, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	if want == "WARNING" {
		want = "WARN"
	}
	for lvl, name := range levelNames {
		if name == want {
			return lvl, nil
		}
	}
	return LevelInfo, fmt.Errorf("invalid log level: %q", s)
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	lowHandler  slog.Handler
	highHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.lowHandler.Enabled(ctx, level) || h.highHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.highHandler.Handle(ctx, r)
	}
	return h.lowHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		lowHandler:  h.lowHandler.WithAttrs(attrs),
		highHandler: h.highHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		lowHandler:  h.lowHandler.WithGroup(name),
		highHandler: h.highHandler.WithGroup(name),
	}
}

// MultiHandler forwards every record to all of its handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a MultiHandler over handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether any handler accepts level.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes a clone of r to each enabled handler. The last error wins.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if e := handler.Handle(ctx, r.Clone()); e != nil {
			err = e
		}
	}
	return err
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiHandler(handlers...)
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiHandler(handlers...)
}

// ReplaceLevelName renders custom levels (NOTICE) by name instead of "DEBUG+2".
func ReplaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		if name, ok := levelNames[lvl]; ok {
			a.Value = slog.StringValue(name)
		}
	}
	return a
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
)

func init() {
	level.Set(LevelInfo)
	defaultLogger = slog.New(&LevelDispatchHandler{
		lowHandler:  newConsoleHandler(os.Stdout),
		highHandler: newConsoleHandler(os.Stderr),
	})
}

func newConsoleHandler(w *os.File) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  "15:04:05",
		NoColor:     !IsTerminal(w),
		ReplaceAttr: ReplaceLevelName,
	})
}

// SetOutput redirects all levels to w as plain logfmt text, primarily for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := w.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		defaultLogger = slog.New(newConsoleHandler(f))
		return
	}
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: ReplaceLevelName,
	}))
}

// SetLevel changes the minimum level of the global logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

// Notice logs at LevelNotice.
func Notice(msg string, args ...any) {
	logger().Log(context.Background(), LevelNotice, msg, args...)
}

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}
