package runtime

import (
	"strings"

	"github.com/mohammad-safakhou/frontdesk/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from general settings.
func NewLogger(cfg config.GeneralConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err != nil {
		level = zapcore.InfoLevel
	}
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
