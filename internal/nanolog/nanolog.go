// Package nanolog is a small structured-logging wrapper around log/slog:
// leveled methods, key/value pairs, a colorized terminal handler and a
// plain logfmt/JSON handler for daemon mode.
package nanolog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level mirrors slog.Level but adds a Trace level below Debug for
// very chatty per-iteration diagnostics.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelCrit  Level = 12
)

func (l Level) slog() slog.Level { return slog.Level(l) }

func (l Level) String() string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO "
	case l <= LevelWarn:
		return "WARN "
	case l <= LevelError:
		return "ERROR"
	default:
		return "CRIT "
	}
}

// Logger is the interface every component in nanod takes a dependency on
// instead of reaching for the global functions directly, so tests can
// inject a capturing logger.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

// New returns a logger writing through h.
func New(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func (l *logger) log(level Level, msg string, ctx []any) {
	if !l.inner.Enabled(context.Background(), level.slog()) {
		return
	}
	if level <= LevelDebug {
		// Trace/Debug output is dense enough that the call site is
		// worth the extra attribute; skip log(), Trace/Debug/..., to
		// land on the caller.
		ctx = append(append([]any{}, ctx...), "caller", fmt.Sprintf("%+v", stack.Caller(2)))
	}
	l.inner.Log(context.Background(), level.slog(), msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.log(LevelCrit, msg, ctx) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

var (
	defaultMu  sync.Mutex
	defaultLog Logger = New(NewTerminalHandler(os.Stderr, isatty.IsTerminal(os.Stderr.Fd())))
)

// SetDefault replaces the package-level default logger used by the
// free functions below.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLog = l
}

func Default() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLog
}

func Trace(msg string, ctx ...any) { Default().Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { Default().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Default().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Default().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Default().Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { Default().Crit(msg, ctx...) }

// NewContext returns a sub-logger of the default logger with the given context.
func NewContext(ctx ...any) Logger { return Default().With(ctx...) }

const termTimeFormat = "01-02|15:04:05.000"

// terminalHandler renders attrs aligned after a fixed-width message
// column: "INFO [mm-dd|hh:mm:ss.sss] msg   k=v k=v".
type terminalHandler struct {
	mu      sync.Mutex
	out     io.Writer
	useColor bool
	attrs   []slog.Attr
	level   atomic.Int64
}

// NewTerminalHandler returns a handler that writes human-readable,
// optionally colorized lines to out. Default level is Info.
func NewTerminalHandler(out io.Writer, useColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(out, LevelInfo, useColor)
}

func NewTerminalHandlerWithLevel(out io.Writer, level Level, useColor bool) slog.Handler {
	h := &terminalHandler{out: out, useColor: useColor}
	h.level.Store(int64(level))
	if useColor {
		h.out = colorable.NewColorable(asFile(out))
	}
	return h
}

func asFile(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return os.Stderr
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return int64(level) >= h.level.Load()
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lvl := Level(r.Level)
	var b []byte
	b = append(b, lvl.String()...)
	b = append(b, " ["...)
	b = r.Time.AppendFormat(b, termTimeFormat)
	b = append(b, "] "...)
	msgStart := len(b)
	b = append(b, r.Message...)
	for len(b) < msgStart+24 {
		b = append(b, ' ')
	}

	writeAttr := func(a slog.Attr) {
		b = append(b, ' ')
		b = append(b, a.Key...)
		b = append(b, '=')
		b = append(b, formatValue(a.Value)...)
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	b = append(b, '\n')
	_, err := h.out.Write(b)
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &terminalHandler{out: h.out, useColor: h.useColor}
	n.level.Store(h.level.Load())
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *terminalHandler) WithGroup(_ string) slog.Handler { return h }

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuote(s) {
			return fmt.Sprintf("%q", s)
		}
		return s
	default:
		s := fmt.Sprintf("%v", v.Any())
		if needsQuote(s) {
			return fmt.Sprintf("%q", s)
		}
		return s
	}
}

func needsQuote(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '"' || r == '\n' || r == '\t' || r == '=' {
			return true
		}
	}
	return len(s) == 0
}

// JSONHandler returns a handler emitting one JSON object per line at
// Debug level and above.
func JSONHandler(out io.Writer) slog.Handler {
	return JSONHandlerWithLevel(out, LevelDebug.slog())
}

func JSONHandlerWithLevel(out io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
}

// LogfmtHandler returns a handler emitting logfmt-style key=value lines.
func LogfmtHandler(out io.Writer) slog.Handler {
	return slog.NewTextHandler(out, &slog.HandlerOptions{Level: LevelDebug.slog()})
}

// writeTimeTermFormat writes t formatted the same way the terminal
// handler formats record timestamps; split out for reuse/benchmarking.
func writeTimeTermFormat(w interface{ Write([]byte) (int, error) }, t time.Time) {
	b := t.AppendFormat(nil, termTimeFormat)
	_, _ = w.Write(b)
}
