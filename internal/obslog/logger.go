// Package obslog provides the engine's level-gated logging.
//
// It writes through the standard log package to stderr; stdout is reserved
// for the tool-dispatch transport that sits outside this core (see §1/§6 of
// SPEC_FULL.md), so nothing in this package, or anything it is used from,
// may write to stdout.
package obslog

import (
	"log"
	"os"
	"strings"
)

// Level is the logging verbosity.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var current Level = LevelInfo

var std = log.New(os.Stderr, "", log.LstdFlags)

// Init reads LOG_LEVEL from the environment and sets the active level.
// Unrecognized or unset values default to info.
func Init() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		current = LevelDebug
	case "error":
		current = LevelError
	default:
		current = LevelInfo
	}
}

// SetLevel overrides the active level programmatically (used by tests).
func SetLevel(l Level) {
	current = l
}

// Debug logs a debug message when LOG_LEVEL=debug.
func Debug(format string, v ...interface{}) {
	if current >= LevelDebug {
		std.Printf("[DEBUG] "+format, v...)
	}
}

// Info logs an info message when LOG_LEVEL is info or debug.
func Info(format string, v ...interface{}) {
	if current >= LevelInfo {
		std.Printf("[INFO] "+format, v...)
	}
}

// Error always logs.
func Error(format string, v ...interface{}) {
	std.Printf("[ERROR] "+format, v...)
}
