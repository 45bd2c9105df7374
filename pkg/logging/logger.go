// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the hardware tester.
//
// The tester runs interactively during bring-up and as a daemon during
// long measurement campaigns, so the logger supports both modes from
// one configuration:
//
//   - Default: stderr output, text when attached to a terminal and
//     JSON when piped or redirected
//   - Optional: a JSON log file per service per day, with automatic
//     directory creation
//
// # Architecture
//
// The package wraps Go's log/slog with a fan-out handler so one log
// call reaches every configured destination:
//
//	┌───────────────────────────────────────────────┐
//	│                    Logger                     │
//	│  ┌──────────────────┐  ┌───────────────────┐  │
//	│  │      stderr      │  │     log file      │  │
//	│  │ (text or JSON)   │  │  (always JSON)    │  │
//	│  └──────────────────┘  └───────────────────┘  │
//	└───────────────────────────────────────────────┘
//
// # Usage
//
// Process setup happens once, normally in the serve command:
//
//	logger := logging.Initialize(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.hwtester/logs",
//	    Service: "hwtester",
//	})
//	defer logger.Close()
//
// Components then take scoped loggers that tag every line:
//
//	log := logging.GetLogger("wsproto")
//	log.Info("listener started", "port", 8765)
//
// # Log Levels
//
// Four levels matching slog conventions:
//
//   - Debug: per-sweep-step detail, handshake traces
//   - Info: connections, experiment start/finish, shutdown
//   - Warn: recoverable conditions (PMU unavailable, clamped input)
//   - Error: failed operations on an otherwise live server
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog handlers
// serialize their own writes.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting a minimum level discards everything below it.
type Level int

const (
	// LevelDebug is for bring-up troubleshooting: handshake fields,
	// per-step sweep progress, pinning failures.
	LevelDebug Level = iota

	// LevelInfo is for normal operation: connections opened and
	// closed, experiments started and finished.
	LevelInfo

	// LevelWarn is for recoverable conditions the operator should
	// know about, such as a PMU that refused to open.
	LevelWarn

	// LevelError is for failed operations on a server that keeps
	// running.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
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
		return "UNKNOWN"
	}
}

// toSlogLevel bridges Level to the standard library's slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a configuration string to a Level. The empty string
// means LevelInfo. Unrecognized strings return LevelInfo and an error
// so callers can warn without losing logging entirely.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// =============================================================================
// Configuration
// =============================================================================

// Stderr output formats. FormatAuto picks text on a terminal and JSON
// otherwise, detected through isatty.
const (
	FormatAuto = ""
	FormatText = "text"
	FormatJSON = "json"
)

// Config configures logger behavior. The zero value logs Info and
// above to stderr in the auto-detected format.
type Config struct {
	// Level is the minimum severity written anywhere.
	// Default: LevelInfo.
	Level Level

	// LogDir enables file logging in the given directory. The file
	// is "{Service}_{YYYY-MM-DD}.log", always JSON, appended across
	// restarts. Supports ~ expansion. Default: "" (disabled).
	LogDir string

	// Service is attached to every entry as the "service" attribute
	// and names the log file. Default: "" (no attribute).
	Service string

	// Format selects the stderr encoding: FormatAuto, FormatText,
	// or FormatJSON. File output is always JSON regardless.
	Format string

	// Quiet disables stderr output, for daemon runs where only the
	// file matters. Default: false.
	Quiet bool
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with multi-destination output and file
// lifecycle handling. Always Close() a logger that has file logging
// configured.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

// New creates a Logger with the given configuration.
//
// Destinations are assembled from config: a stderr handler unless
// Quiet, and a JSON file handler when LogDir is set. When the log
// directory or file cannot be created, file logging is skipped and
// stderr still works.
//
// Parameters:
//   - config: logger configuration, zero value for stderr-only Info
//
// Returns:
//   - *Logger: ready to use; Close() releases the file handle
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	var handlers []slog.Handler
	if !config.Quiet {
		handlers = append(handlers, stderrHandler(config.Format, opts))
	}

	logger := &Logger{config: config}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "hwtester"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
			logPath := filepath.Join(logDir, filename)

			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs somewhere to put errors.
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// stderrHandler picks the stderr encoding. FormatAuto uses text on a
// terminal and JSON when output is piped, so journald and container
// runtimes get machine-parseable lines without configuration.
func stderrHandler(format string, opts *slog.HandlerOptions) slog.Handler {
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(os.Stderr, opts)
	case FormatText:
		return slog.NewTextHandler(os.Stderr, opts)
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}

// Default returns a logger with default settings: Info level, stderr
// only, auto-detected format, service "hwtester".
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "hwtester",
	})
}

// Debug logs a message at Debug level with key-value attributes.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs a message at Info level with key-value attributes.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a message at Warn level with key-value attributes.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs a message at Error level with key-value attributes.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child Logger carrying additional attributes. The
// parent is unchanged; the file handle is shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
	}
}

// Slog exposes the underlying slog.Logger for packages that take one
// directly.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if one was opened. Safe to
// call on a stderr-only logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("logging: syncing log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("logging: closing log file: %w", err)
	}
	l.file = nil
	return nil
}

// =============================================================================
// Process Logger
// =============================================================================

var (
	processMu sync.RWMutex
	process   *Logger
)

// Initialize builds the process-wide logger from cfg and installs it
// as slog's default, so direct slog calls and component loggers agree
// on destinations. The returned Logger owns the log file; close it on
// shutdown.
func Initialize(cfg Config) *Logger {
	logger := New(cfg)
	processMu.Lock()
	process = logger
	processMu.Unlock()
	slog.SetDefault(logger.Slog())
	return logger
}

// GetLogger returns a component-scoped view of the process logger.
// Every entry carries a "component" attribute. Before Initialize has
// run, a default stderr logger is installed lazily so early callers
// still log somewhere.
func GetLogger(component string) *slog.Logger {
	processMu.RLock()
	l := process
	processMu.RUnlock()

	if l == nil {
		processMu.Lock()
		if process == nil {
			process = Default()
		}
		l = process
		processMu.Unlock()
	}
	return l.Slog().With("component", component)
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans one record out to several slog handlers, which is
// how stderr text and file JSON coexist on a single logger.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any destination wants the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled destination.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs applies the attributes to every destination.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup applies the group to every destination.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helpers
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
