// Package logbridge implements spec component C4: a single
// process-wide, user-installable sink that both the SRT library's own log
// emissions and this module's internal diagnostics flow through. It holds
// no cgo state; the root package's logging.go is the only place that talks
// to srt_setloghandler and forwards into Emit.
package logbridge

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors spec.md §4.4's five levels, ordered from least to most
// severe so numeric comparisons ("at least Warning") work.
type Level int

const (
	Debug Level = iota
	Notice
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Notice:
		return "NOTICE"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// SinkFunc is the callback shape spec.md §4.4 defines. Lines forwarded
// from the SRT library carry SRT's file and line with an empty function;
// this module's own lines pass an empty file and function and a zero line.
type SinkFunc func(level Level, area, message, file, function string, line int)

var sink atomic.Pointer[SinkFunc]

func init() {
	SetSink(nil) // install the default
}

// SetSink installs cb as the process-wide sink. A nil cb restores the
// default stderr sink. Safe to call concurrently with Emit.
func SetSink(cb SinkFunc) {
	if cb == nil {
		cb = defaultSink
	}
	sink.Store(&cb)
}

// Emit dispatches one log line through whichever sink is currently
// installed. May be called from the reactor's goroutines or from any
// thread the SRT library chooses; the sink itself is responsible for its
// own synchronization per spec.md §4.4 (SetSink's atomic swap only
// protects the slot, not the callback body).
func Emit(level Level, area, message, file, function string, line int) {
	cb := sink.Load()
	(*cb)(level, area, message, file, function, line)
}

// defaultLogger is the zap logger backing the default sink, grounded on
// nspcc-dev/neo-go's use of go.uber.org/zap for server-lifecycle logging.
// It writes through a zap production console encoder (timestamp, zap
// level, message, then area and loc as structured fields) rather than a
// hand-rolled Fprintf; it does not render the bracketed
// "[LEVEL ] [area] [file:function:line] message" layout.
var defaultLogger = zap.Must(zap.Config{
	Level:            zap.NewAtomicLevelAt(zapcore.DebugLevel),
	Encoding:         "console",
	EncoderConfig:    zap.NewProductionEncoderConfig(),
	OutputPaths:      []string{"stderr"},
	ErrorOutputPaths: []string{"stderr"},
}.Build())

// defaultSink forwards one line to defaultLogger with area and
// "file:function:line" as fields. Notice and Warning are written at zap's
// Warn level; Error and Critical at zap's Error level.
func defaultSink(level Level, area, message, file, function string, line int) {
	loc := fmt.Sprintf("%s:%s:%d", file, function, line)
	zf := []zap.Field{zap.String("area", area), zap.String("loc", loc)}
	switch level {
	case Debug:
		defaultLogger.Debug(message, zf...)
	case Notice, Warning:
		defaultLogger.Warn(message, zf...)
	case Error:
		defaultLogger.Error(message, zf...)
	default:
		defaultLogger.Error(message, zf...)
	}
}

// ReactorLogger adapts Emit to the small Debugw/Warnw interface the
// reactor package depends on, keeping that package cgo- and zap-free while
// still routing its diagnostics through the same process-wide sink as
// everything else.
type ReactorLogger struct{ Area string }

func (r ReactorLogger) Debugw(msg string, kv ...any) { r.emit(Debug, msg, kv) }
func (r ReactorLogger) Warnw(msg string, kv ...any)  { r.emit(Warning, msg, kv) }

func (r ReactorLogger) emit(level Level, msg string, kv []any) {
	Emit(level, r.Area, formatKV(msg, kv), "", "", 0)
}

func formatKV(msg string, kv []any) string {
	out := msg
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}
