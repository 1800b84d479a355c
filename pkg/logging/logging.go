// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the zap loggers used by azauth. Logs are written to
// stderr so that stdout only carries command output such as tokens.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity names accepted by ParseLevel.
const (
	VerbosityDebug = "debug"
	VerbosityInfo  = "info"
	VerbosityWarn  = "warn"
	VerbosityError = "error"
)

// DefaultVerbosity is used when no verbosity is configured.
const DefaultVerbosity = VerbosityInfo

// Verbosities lists the accepted verbosity names, for flag help and completion.
func Verbosities() []string {
	return []string{VerbosityDebug, VerbosityInfo, VerbosityWarn, VerbosityError}
}

// ParseLevel maps a verbosity name to a zap level. An empty name is the
// default verbosity.
func ParseLevel(verbosity string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(verbosity)) {
	case "":
		return zapcore.InfoLevel, nil
	case VerbosityDebug, "trace":
		return zapcore.DebugLevel, nil
	case VerbosityInfo:
		return zapcore.InfoLevel, nil
	case VerbosityWarn, "warning":
		return zapcore.WarnLevel, nil
	case VerbosityError, "critical":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown verbosity %q (supported: %s)", verbosity, strings.Join(Verbosities(), ", "))
	}
}

// Options configures New.
type Options struct {
	Verbosity string
	// JSON switches from the console encoder to JSON lines.
	JSON bool
	// OutputPaths defaults to stderr.
	OutputPaths []string
	// Writer, if set, replaces OutputPaths.
	Writer io.Writer
}

// New builds a logger. Debug verbosity uses zap's development config, every
// other verbosity the production config.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Verbosity)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Encoding = "console"
	if opts.JSON {
		cfg.Encoding = "json"
	}
	cfg.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	if opts.Writer != nil {
		encoder := zapcore.NewConsoleEncoder(cfg.EncoderConfig)
		if opts.JSON {
			encoder = zapcore.NewJSONEncoder(cfg.EncoderConfig)
		}
		return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(opts.Writer), cfg.Level)), nil
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return logger, nil
}

// NewTestLogger returns a sugared logger configured for tests. It mirrors the
// development logger but disables automatic stacktraces so normal test logs
// don't include stack frames.
func NewTestLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, _ := cfg.Build()
	return logger.Sugar()
}
