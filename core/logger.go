package core

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (see observability/logrus)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Level orders the severities understood by DefaultLogger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// DefaultLogger writes one line per message through a standard library
// *log.Logger, dropping messages below its minimum level.
// Lines look like: [WARN] servant loop quit requested {loop: servant}
type DefaultLogger struct {
	out *log.Logger
	min Level
}

// NewDefaultLogger creates a DefaultLogger writing to w at LevelInfo.
// A nil w writes through log.Default().
func NewDefaultLogger(w io.Writer) *DefaultLogger {
	out := log.Default()
	if w != nil {
		out = log.New(w, "", log.LstdFlags)
	}
	return &DefaultLogger{out: out, min: LevelInfo}
}

// WithLevel returns a copy of the logger that keeps messages at or above min.
func (l *DefaultLogger) WithLevel(min Level) *DefaultLogger {
	return &DefaultLogger{out: l.out, min: min}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *DefaultLogger) log(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	if len(fields) > 0 {
		b.WriteString(" {")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", f.Key, f.Value)
		}
		b.WriteByte('}')
	}
	l.out.Println(b.String())
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
