// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     logging
// Description: Factory functions for creating component loggers
// Author:      Mike Stoffels
// Created:     2026-09-21
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultsMu sync.RWMutex
	defaults   = LoggerConfig{Level: "info", Format: "text"}
)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Component name
	ServiceName string

	// Log level (debug, info, warn, error)
	Level string

	// Output format
	Format string // "json" or "text" (default: json)

	// Output writer (default: stderr)
	Output io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// Configure sets the level, format and output used by New.
// Called once by the CLI after the config file has been read.
func Configure(level, format string, output io.Writer) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	if level != "" {
		defaults.Level = level
	}
	if format != "" {
		defaults.Format = format
	}
	defaults.Output = output
}

// NewLogger creates a logger from an explicit configuration
func NewLogger(cfg LoggerConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if cfg.ServiceName != "" {
		base = base.Named(cfg.ServiceName)
	}

	return &Logger{
		sugar: base.Sugar(),
		level: level,
		name:  cfg.ServiceName,
		cfg:   cfg,
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.InfoLevel),
		name:  "nop",
		cfg:   LoggerConfig{ServiceName: "nop", Level: "error", Output: io.Discard},
	}
}

// parseLevel converts a string level to a zap level
func parseLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the key/value logger handed to every component
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	name  string
	cfg   LoggerConfig
}

// New creates a logger for the named component using the process defaults
func New(name string) *Logger {
	defaultsMu.RLock()
	cfg := defaults
	defaultsMu.RUnlock()
	cfg.ServiceName = name
	return NewLogger(cfg)
}

// Named returns a child logger with name appended
func (l *Logger) Named(name string) *Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	cfg := l.cfg
	cfg.ServiceName = full
	return &Logger{
		sugar: l.sugar.Named(name),
		level: l.level,
		name:  full,
		cfg:   cfg,
	}
}

// WithLevel returns a new logger with the specified minimum level
func (l *Logger) WithLevel(level Level) *Logger {
	cfg := l.cfg
	cfg.Level = level.String()
	return NewLogger(cfg)
}

// With returns a logger that always adds the given key-value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sugar: l.sugar.With(keysAndValues...),
		level: l.level,
		name:  l.name,
		cfg:   l.cfg,
	}
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(level.zapLevel())
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
