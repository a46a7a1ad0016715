// Package logging provides component-tagged logging helpers: a
// package-level Debug() for untagged call sites, and a Logger type
// offering Debug/Info/Warn/Error each prefixed with a component tag
// (e.g. "abc: ", "xchat: ") for the per-subsystem daemons.
package logging

import "log"

// DebugEnabled controls whether Debug() produces output.
// Callers assign it directly; this package reads no flag or
// environment variable.
var DebugEnabled bool

// Debug logs a message only when DebugEnabled is true.
func Debug(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}

// Logger is a component-tagged front end onto the standard logger.
type Logger struct {
	tag string
}

// New returns a Logger that prefixes every message with "tag: ".
func New(tag string) Logger {
	return Logger{tag: tag}
}

// Debug logs a message only when DebugEnabled is true.
func (l Logger) Debug(format string, args ...any) {
	if DebugEnabled {
		log.Printf(l.tag+": DEBUG: "+format, args...)
	}
}

// Info logs an informational message.
func (l Logger) Info(format string, args ...any) {
	log.Printf(l.tag+": "+format, args...)
}

// Warn logs a recoverable-condition message (retried transient I/O).
func (l Logger) Warn(format string, args ...any) {
	log.Printf(l.tag+": WARN: "+format, args...)
}

// Error logs an unrecoverable-condition message.
func (l Logger) Error(format string, args ...any) {
	log.Printf(l.tag+": ERROR: "+format, args...)
}
