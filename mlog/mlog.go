// Package mlog is a small structured logging library. Log methods come in
// severities Debug, Info, Warn, Error, and Fatal, and take a Context which
// may carry annotations (see the mctx package) to include in the log line.
package mlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redikit/redikit/mctx"
	"github.com/redikit/redikit/merr"
)

// Level describes the severity of a log message.
type Level int

// All predefined log levels, most severe first.
const (
	LevelFatal Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelFatal:
		return "FATAL"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// LevelFromString parses a case-insensitive level name, defaulting to
// LevelInfo if s doesn't match any known level.
func LevelFromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FATAL":
		return LevelFatal
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Handler processes a rendered log line. Handle must be safe for concurrent
// use.
type Handler interface {
	Handle(t time.Time, lvl Level, ns []string, descr string, kv map[string]string) error
}

// Logger directs log calls to a Handler, filtered by a maximum Level and
// tagged with a namespace.
type Logger struct {
	mu      sync.Mutex
	handler Handler
	max     Level
	ns      []string
}

// New returns a Logger which sends messages at lvl or more severe to h.
func New(h Handler, lvl Level) *Logger {
	return &Logger{handler: h, max: lvl}
}

// Null discards all messages.
var Null = New(NullHandler{}, LevelFatal)

// NullHandler implements Handler by discarding everything.
type NullHandler struct{}

// Handle implements Handler.
func (NullHandler) Handle(time.Time, Level, []string, string, map[string]string) error { return nil }

// WithNamespace returns a copy of l with name appended to its namespace
// path. Namespaces are included in every logged message.
func (l *Logger) WithNamespace(name string) *Logger {
	l2 := *l
	l2.ns = append(append([]string{}, l.ns...), name)
	return &l2
}

func (l *Logger) log(ctx context.Context, lvl Level, descr string, err error) {
	if lvl > l.max {
		return
	}

	kv := map[string]string{}
	for k, v := range mctx.Get(ctx) {
		kv[k] = v
	}
	if err != nil {
		kv["err"] = err.Error()
		if k := merr.KindOf(err); k != merr.KindUnknown {
			kv["errKind"] = k.String()
		}
	}

	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()

	if herr := h.Handle(time.Now(), lvl, l.ns, descr, kv); herr != nil {
		fmt.Fprintf(os.Stderr, "mlog: handler error: %v\n", herr)
	}

	if lvl == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a LevelDebug message.
func (l *Logger) Debug(ctx context.Context, descr string) { l.log(ctx, LevelDebug, descr, nil) }

// Info logs a LevelInfo message.
func (l *Logger) Info(ctx context.Context, descr string) { l.log(ctx, LevelInfo, descr, nil) }

// WarnString logs a LevelWarn message with no error attached.
func (l *Logger) WarnString(ctx context.Context, descr string) { l.log(ctx, LevelWarn, descr, nil) }

// Warn logs a LevelWarn message along with the given error.
func (l *Logger) Warn(ctx context.Context, descr string, err error) {
	l.log(ctx, LevelWarn, descr, err)
}

// ErrorString logs a LevelError message with no error attached.
func (l *Logger) ErrorString(ctx context.Context, descr string) { l.log(ctx, LevelError, descr, nil) }

// Error logs a LevelError message along with the given error.
func (l *Logger) Error(ctx context.Context, descr string, err error) {
	l.log(ctx, LevelError, descr, err)
}

// Fatal logs a LevelFatal message and terminates the process.
func (l *Logger) Fatal(ctx context.Context, descr string) { l.log(ctx, LevelFatal, descr, nil) }

// TextHandler writes one human-readable line per message to an io.Writer.
// This is the default handler, matching the teacher library's low-ceremony
// stderr logging for local/dev use.
type TextHandler struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextHandler returns a Handler which writes to out.
func NewTextHandler(out io.Writer) *TextHandler {
	return &TextHandler{out: out}
}

// Handle implements Handler.
func (h *TextHandler) Handle(t time.Time, lvl Level, ns []string, descr string, kv map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "%s %-5s", t.UTC().Format("2006-01-02T15:04:05.000Z"), lvl)
	if len(ns) > 0 {
		fmt.Fprintf(h.out, " [%s]", strings.Join(ns, "."))
	}
	fmt.Fprintf(h.out, " %s", descr)
	for k, v := range kv {
		fmt.Fprintf(h.out, " %s=%q", k, v)
	}
	fmt.Fprint(h.out, "\n")
	return nil
}
