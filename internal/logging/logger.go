// Package logging provides the leveled logger used by the gateway.
// It wraps the standard library logger with a severity filter so the
// --log-level flag controls verbosity without pulling in a framework.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level is a log severity
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel converts a level name to a Level, defaulting to info
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "error":
		return LevelError, nil
	case "warn":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is a severity-filtered logger
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a logger writing to w at the given level
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		level: level,
		out:   log.New(w, "[tauri-wd] ", log.LstdFlags),
	}
}

// Default creates a stderr logger at info level
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// Std returns a standard library logger that bypasses filtering, for
// components that take a *log.Logger.
func (l *Logger) Std() *log.Logger {
	return l.out
}

func (l *Logger) logf(level Level, tag, format string, args ...any) {
	if level > l.level {
		return
	}
	l.out.Printf(tag+" "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, "ERROR", format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, "WARN", format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, "INFO", format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LevelDebug, "DEBUG", format, args...)
}

func (l *Logger) Tracef(format string, args ...any) {
	l.logf(LevelTrace, "TRACE", format, args...)
}
