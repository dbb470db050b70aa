package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	reqtrace "github.com/gaborage/upfetch/trace"
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
type ZeroLogger struct {
	zlog         *zerolog.Logger
	filter       *SensitiveDataFilter
	severityHook func(zerolog.Level)
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// Options configures a ZeroLogger.
type Options struct {
	// Level is a zerolog level name; unknown values fall back to info.
	Level string
	// Pretty switches from JSON lines to the human readable console writer.
	Pretty bool
	// Output defaults to stderr so command output on stdout stays clean.
	Output io.Writer
	// Filter selects the masked field names. Nil uses DefaultFilterConfig.
	Filter *FilterConfig
}

var callerMarshalOnce sync.Once

// New creates a logger writing to stderr at the given level.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithOptions(Options{Level: level, Pretty: pretty})
}

// NewWithFilter creates a logger with a custom sensitive field configuration.
func NewWithFilter(level string, pretty bool, filterConfig *FilterConfig) *ZeroLogger {
	return NewWithOptions(Options{Level: level, Pretty: pretty, Filter: filterConfig})
}

// NewWithOptions creates a logger from opts.
func NewWithOptions(opts Options) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = shortCaller
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger().Level(ParseLevel(opts.Level))
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(opts.Filter)}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return zLevel
}

// shortCaller renders "dir/file.go:line".
func shortCaller(_ uintptr, file string, line int) string {
	base := filepath.Base(file)
	parent := filepath.Base(filepath.Dir(file))
	if parent != "." && parent != "" && parent != string(filepath.Separator) {
		return parent + "/" + base + ":" + strconv.Itoa(line)
	}
	return base + ":" + strconv.Itoa(line)
}

// WithContext returns a logger bound to ctx. It picks up a zerolog logger
// stored on the context, the severity hook, the request ID and the active
// span. When ctx carries none of them the receiver is returned unchanged.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	c, ok := ctx.(context.Context)
	if !ok || c == nil {
		return l
	}

	zl := l.zlog
	changed := false
	if fromCtx := zerolog.Ctx(c); fromCtx != nil && fromCtx.GetLevel() != zerolog.Disabled {
		zl = fromCtx
		changed = true
	}

	hook := l.severityHook
	if h := severityHookFromContext(c); h != nil {
		hook = h
		changed = true
	}

	zctx := zl.With()
	fields := false
	if id, ok := reqtrace.RequestIDFromContext(c); ok {
		zctx = zctx.Str("request_id", id)
		fields = true
	}
	if sc := trace.SpanContextFromContext(c); sc.IsValid() {
		zctx = zctx.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		fields = true
	}
	if fields {
		withFields := zctx.Logger()
		zl = &withFields
		changed = true
	}

	if !changed {
		return l
	}
	return &ZeroLogger{zlog: zl, filter: l.filter, severityHook: hook}
}

// WithFields returns a logger with additional fields attached to all log entries.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, filter: l.filter, severityHook: l.severityHook}
}
