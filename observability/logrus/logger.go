// Package logrus adapts logrus to core.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/Swind/go-loopers/core"
)

// Logger implements core.Logger on top of a logrus.FieldLogger.
type Logger struct {
	entry logrus.FieldLogger
}

var _ core.Logger = (*Logger)(nil)

// New wraps l. A nil l uses logrus.StandardLogger().
func New(l logrus.FieldLogger) *Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logger{entry: l}
}

// With returns a Logger that always adds fields.
func (l *Logger) With(fields ...core.Field) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(fields))}
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

func toFields(fields []core.Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[f.Key] = err.Error()
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

// NewStandard builds a *logrus.Logger from textual settings. level is any
// value accepted by logrus.ParseLevel; format is "text" or "json".
func NewStandard(level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetLevel(lvl)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}
