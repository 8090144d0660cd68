package pairview

import "errors"

// Sentinel errors for session lifecycle.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrInvalidOptions indicates options a session cannot run with.
	ErrInvalidOptions = errors.New("invalid session options")

	// ErrSessionStopped indicates the session was stopped and cannot restart.
	ErrSessionStopped = errors.New("session stopped")

	// ErrAlreadyStarted indicates Start was called on a running session.
	ErrAlreadyStarted = errors.New("session already started")
)
