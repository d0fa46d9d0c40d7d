// Package logging builds the zap logger used by the command line tool.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the named level (debug, info, warn,
// error). Logs go to stderr so rendered reports on stdout stay parseable.
func New(level string) (*zap.Logger, error) {
	cfg, err := Config(level)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %w", err)
	}
	return logger, nil
}

// Config is the configuration New builds from.
func Config(level string) (zap.Config, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeCaller = nil
	if lvl == zapcore.DebugLevel {
		cfg.DisableStacktrace = false
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	return cfg, nil
}
