package logger

import (
	"github.com/sirupsen/logrus"

	"grove"
)

// Logrus adapts a logrus.Logger to grove.Logger. grove's alternating
// key/value args become logrus fields; a non-string key or a dangling
// trailing value is dropped rather than logged malformed.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus creates a grove.Logger from a logrus.Logger.
func NewLogrus(logger *logrus.Logger) grove.Logger {
	return &Logrus{logger: logger}
}

func (l *Logrus) Error(msg string, args ...any) {
	l.entry(args).Error(msg)
}

func (l *Logrus) Warn(msg string, args ...any) {
	l.entry(args).Warn(msg)
}

func (l *Logrus) Info(msg string, args ...any) {
	l.entry(args).Info(msg)
}

// Debug carries grove's per-page split and merge traffic.
func (l *Logrus) Debug(msg string, args ...any) {
	l.entry(args).Debug(msg)
}

func (l *Logrus) entry(args []any) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return l.logger.WithFields(fields)
}
