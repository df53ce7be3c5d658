// Package logging hands out scoped leveled loggers backed by one shared
// pion logger factory.
package logging

import (
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	loggerFactory = logging.NewDefaultLoggerFactory()

	mu      sync.Mutex
	loggers []*logging.DefaultLeveledLogger
)

// NewLogger returns a logger for the given scope, e.g. "sdt/edit".
func NewLogger(scope string) logging.LeveledLogger {
	mu.Lock()
	defer mu.Unlock()
	l := loggerFactory.NewLogger(scope)
	if dl, ok := l.(*logging.DefaultLeveledLogger); ok {
		loggers = append(loggers, dl)
	}
	return l
}

// SetLevel changes the level of every logger handed out so far and of those
// created later. Unknown names leave the level unchanged and return false.
func SetLevel(name string) bool {
	level, ok := ParseLevel(name)
	if !ok {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	loggerFactory.DefaultLogLevel = level
	for _, l := range loggers {
		l.SetLevel(level)
	}
	return true
}

// ParseLevel maps a config level name to a pion log level.
func ParseLevel(name string) (logging.LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, true
	case "error":
		return logging.LogLevelError, true
	case "warn", "warning":
		return logging.LogLevelWarn, true
	case "info":
		return logging.LogLevelInfo, true
	case "debug":
		return logging.LogLevelDebug, true
	case "trace":
		return logging.LogLevelTrace, true
	}
	return logging.LogLevelInfo, false
}
