// Package logging is the leveled logger shared by the debugger engine, the
// Lua host and the console. A line looks like
//
//	2026-01-02T15:04:05.000 [INFO] stepdb: running /src/main.lua {component=lua, session=...}
//
// Loggers derived with WithField share their parent's output.
package logging

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of a message.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

func lookupLevel(s string) (LogLevel, bool) {
	s = strings.ToUpper(s)
	if s == "WARNING" {
		s = "WARN"
	}
	for i, name := range levelNames {
		if name == s {
			return LogLevel(i), true
		}
	}
	return LogLevelInfo, false
}

// ParseLogLevel returns the level named by s, case-insensitively. Unknown
// names give LogLevelInfo; ValidLogLevel rejects them.
func ParseLogLevel(s string) LogLevel {
	l, _ := lookupLevel(s)
	return l
}

// ValidLogLevel reports whether s names a level.
func ValidLogLevel(s string) bool {
	_, ok := lookupLevel(s)
	return ok
}

// Config configures a Logger.
type Config struct {
	Level LogLevel
	// Output defaults to os.Stderr.
	Output io.Writer
	Prefix string
}

// sink serializes writes of a logger family.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

// Logger writes leveled lines with sorted key=value fields.
type Logger struct {
	out      *sink
	level    atomic.Int32
	disabled atomic.Bool
	prefix   string
	fields   map[string]any
}

// NullLogger discards everything, as do loggers derived from it.
var NullLogger = &Logger{}

// New creates a logger.
func New(cfg Config) *Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	l := &Logger{out: &sink{w: w}, prefix: cfg.Prefix}
	l.level.Store(int32(cfg.Level))
	return l
}

// WithField returns a logger that adds key=value to every line.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a logger that adds fields to every line.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	child := &Logger{
		out:    l.out,
		prefix: l.prefix,
		fields: maps.Clone(l.fields),
	}
	if child.fields == nil {
		child.fields = make(map[string]any, len(fields))
	}
	maps.Copy(child.fields, fields)
	child.level.Store(l.level.Load())
	child.disabled.Store(l.disabled.Load())
	return child
}

// WithComponent sets the component field.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// WithSession tags the logger with a fresh session id.
func (l *Logger) WithSession() (*Logger, uuid.UUID) {
	id := uuid.New()
	return l.WithField("session", id), id
}

// SetLevel sets the minimum level written.
func (l *Logger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

// Level returns the minimum level written.
func (l *Logger) Level() LogLevel { return LogLevel(l.level.Load()) }

// Disable drops all further output of l.
func (l *Logger) Disable() { l.disabled.Store(true) }

func (l *Logger) Debug(msg string, args ...any) { l.log(LogLevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LogLevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LogLevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(LogLevelError, msg, args) }

// log formats msg with args, printf style, when there are any.
func (l *Logger) log(level LogLevel, msg string, args []any) {
	if l == nil || l.out == nil || l.disabled.Load() || level < l.Level() {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] ", time.Now().Format("2006-01-02T15:04:05.000"), level)
	if l.prefix != "" {
		b.WriteString(l.prefix + ": ")
	}
	b.WriteString(msg)
	if len(l.fields) > 0 {
		pairs := make([]string, 0, len(l.fields))
		for _, k := range slices.Sorted(maps.Keys(l.fields)) {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, l.fields[k]))
		}
		b.WriteString(" {" + strings.Join(pairs, ", ") + "}")
	}
	b.WriteByte('\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = io.WriteString(l.out.w, b.String())
}
