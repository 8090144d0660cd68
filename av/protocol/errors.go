package protocol

import "errors"

// Sentinel errors for packet decoding.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrEmptyPacket indicates a zero-length packet.
	ErrEmptyPacket = errors.New("empty packet")

	// ErrTruncated indicates a declared field length exceeds the remaining bytes.
	ErrTruncated = errors.New("packet truncated")

	// ErrUnknownKind indicates an unrecognised tag or kind discriminant.
	ErrUnknownKind = errors.New("unknown packet kind")

	// ErrVariantDisabled indicates the packet belongs to a wire variant the
	// decoder was configured to reject.
	ErrVariantDisabled = errors.New("wire variant disabled")

	// ErrInvalidDimensions indicates a zero or oversized frame dimension.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")
)
