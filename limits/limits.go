// Package limits provides centralized size limits for untrusted stream input.
// This ensures consistent validation across the socket, decoder and reassembly.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxFramePixels bounds width×height of any announced frame (8K UHD).
	// A hostile header cannot force a larger allocation.
	MaxFramePixels = 7680 * 4320

	// MaxFramePayload is the planar 4:2:0 size of the largest frame:
	// Y = w·h plus two chroma planes of w·h/4.
	MaxFramePayload = MaxFramePixels + 2*(MaxFramePixels/4)

	// UntaggedFrameOverhead is the fixed prefix of a single-packet frame:
	// kind, width, height, capture and send timestamps.
	UntaggedFrameOverhead = 28

	// MaxPacketSize is the largest socket message accepted. The biggest
	// legitimate message is an untagged frame at MaxFramePixels.
	MaxPacketSize = UntaggedFrameOverhead + MaxFramePayload

	// MaxParticipantID bounds the participant id carried with a remote
	// cursor position, in bytes.
	MaxParticipantID = 256
)

var (
	// ErrPacketEmpty indicates an empty packet was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooLarge indicates a packet exceeds the maximum size
	ErrPacketTooLarge = errors.New("packet too large")
)

// ValidatePacketSize validates a packet against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePacketSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrPacketEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidatePacket validates a socket message against MaxPacketSize.
func ValidatePacket(data []byte) error {
	return ValidatePacketSize(data, MaxPacketSize)
}

// FramePixelsAllowed reports whether a width×height frame is within
// MaxFramePixels. Non-positive dimensions are rejected.
func FramePixelsAllowed(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return width <= MaxFramePixels/height
}
