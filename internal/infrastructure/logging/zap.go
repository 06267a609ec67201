// Package logging backs the application Logger interface with zap.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openfleet/lastmile/internal/application/common"
)

// ZapLogger adapts a zap.Logger to the application common.Logger interface.
type ZapLogger struct {
	logger *zap.Logger
}

var _ common.Logger = (*ZapLogger)(nil)

// New builds a zap-backed logger. level is one of debug/info/warn/error;
// format is json or console.
func New(level, format string) (*ZapLogger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if format == "console" || format == "text" {
		cfg.Encoding = "console"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{logger: logger}, nil
}

// NewNop returns a logger that discards everything (for tests).
func NewNop() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

// Log implements common.Logger by mapping the level string and metadata map
// onto zap fields.
func (l *ZapLogger) Log(level, message string, metadata map[string]interface{}) {
	fields := make([]zap.Field, 0, len(metadata))
	for k, v := range metadata {
		fields = append(fields, zap.Any(k, v))
	}

	switch strings.ToUpper(level) {
	case "DEBUG":
		l.logger.Debug(message, fields...)
	case "WARN", "WARNING":
		l.logger.Warn(message, fields...)
	case "ERROR":
		l.logger.Error(message, fields...)
	default:
		l.logger.Info(message, fields...)
	}
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
