package server

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Format "console" gives human-readable
// output, anything else JSON. Logs always go to stderr so stdio mode keeps
// stdout for protocol frames.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// MaskSensitive masks secrets and credential-bearing URLs for logging
func MaskSensitive(value string) string {
	if value == "" {
		return ""
	}
	if at := strings.LastIndex(value, "@"); at > 0 && strings.Contains(value, "://") {
		scheme := value[:strings.Index(value, "://")+3]
		return scheme + "***" + value[at:]
	}
	if len(value) > 20 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}
