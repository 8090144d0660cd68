package transport

import "errors"

// Sentinel errors for the connection manager.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrNotOpen indicates an operation that needs an open connection.
	ErrNotOpen = errors.New("connection is not open")

	// ErrInvalidURL indicates an empty or malformed socket URL.
	ErrInvalidURL = errors.New("invalid socket URL")

	// ErrDialFailed indicates the socket could not be established.
	ErrDialFailed = errors.New("socket dial failed")

	// ErrWorkerUnavailable indicates the I/O worker could not be started.
	ErrWorkerUnavailable = errors.New("I/O worker unavailable")

	// ErrQueueFull indicates the worker's outbound queue has no room.
	ErrQueueFull = errors.New("worker send queue full")
)
