// Package protoerr carries the severity-tagged error shape every packet
// handler in fusioncore returns. The event loop (internal/server) is the only
// place that inspects Severity to decide whether a connection should be
// dropped; handlers themselves never close sockets directly.
package protoerr

import (
	"errors"
	"fmt"
)

// Severity classifies how an error should be surfaced, per spec §7.
type Severity int

const (
	// Debug is an expected condition, e.g. an already-expired offer.
	Debug Severity = iota
	// Info is a benign state change worth a log line.
	Info
	// Warning is a protocol or logic violation. Log it, reply with a typed
	// failure packet when one applies, keep the connection open.
	Warning
	// Fatal is unrecoverable; the event loop logs it and terminates the
	// process.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the value every handler in fusioncore returns instead of a bare
// error. ShouldDC tells the event loop to disconnect the offending client
// after the fail path (if any) has had a chance to emit a typed failure
// packet back to it.
type Error struct {
	Severity Severity
	Op       string
	Err      error
	ShouldDC bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Severity)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Severity, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a protoerr.Error with the given severity.
func New(op string, severity Severity, err error) *Error {
	return &Error{Op: op, Severity: severity, Err: err}
}

// Disconnect builds a Warning-or-worse error that additionally tells the
// event loop to drop the connection once handling finishes.
func Disconnect(op string, severity Severity, err error) *Error {
	return &Error{Op: op, Severity: severity, Err: err, ShouldDC: true}
}

// IsFatal reports whether err (or any error it wraps) is a protoerr.Error
// whose severity is Fatal.
func IsFatal(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Severity == Fatal
}
