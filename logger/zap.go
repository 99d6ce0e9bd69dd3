package logger

import (
	"go.uber.org/zap"

	"grove"
)

// Zap adapts a zap.Logger to grove.Logger. The sugared form is held
// directly: grove emits alternating key/value args, which map 1:1
// onto zap's *w methods. Page ids arrive as int64 fields ("page",
// "sibling", "new_root"), so no custom encoders are needed.
type Zap struct {
	sugar *zap.SugaredLogger
}

// NewZap creates a grove.Logger from a zap.Logger.
func NewZap(logger *zap.Logger) grove.Logger {
	return &Zap{sugar: logger.Sugar()}
}

func (z *Zap) Error(msg string, args ...any) {
	z.sugar.Errorw(msg, args...)
}

func (z *Zap) Warn(msg string, args ...any) {
	z.sugar.Warnw(msg, args...)
}

func (z *Zap) Info(msg string, args ...any) {
	z.sugar.Infow(msg, args...)
}

// Debug carries grove's per-page split and merge traffic; enable it
// only when tracing structural modifications.
func (z *Zap) Debug(msg string, args ...any) {
	z.sugar.Debugw(msg, args...)
}
