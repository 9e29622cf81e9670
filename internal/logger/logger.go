// Package logger provides process-wide logging for sercha-match.
// Messages go through log/slog so servers can emit JSON while the CLI
// keeps readable text. Debug output appears only in verbose mode.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	format            = "text"
	level             = slog.LevelInfo
	base              = build()
)

func build() *slog.Logger {
	lvl := level
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build()
}

// SetFormat selects "text" or "json" output.
func SetFormat(f string) error {
	f = strings.ToLower(strings.TrimSpace(f))
	if f != "text" && f != "json" {
		return fmt.Errorf("unknown log format %q", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	base = build()
	return nil
}

// SetLevel sets the minimum level: debug, info, warn or error.
func SetLevel(name string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("unknown log level %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	base = build()
	return nil
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Slog().With(args...)
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	Slog().Debug(fmt.Sprintf(format, args...))
}

// Section logs a section header if verbose mode is enabled.
func Section(name string) {
	Slog().Debug("=== " + name + " ===")
}

// Info logs an informational message.
func Info(format string, args ...any) {
	Slog().Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	Slog().Warn(fmt.Sprintf(format, args...))
}

// Error logs an error.
func Error(format string, args ...any) {
	Slog().Error(fmt.Sprintf(format, args...))
}
