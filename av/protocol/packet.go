package protocol

import (
	"fmt"

	"github.com/opd-ai/pairview/limits"
)

// Wire tags and kinds.
const (
	TagHeader    byte = 'H'
	TagDataChunk byte = 'D'

	KindFrame uint32 = 0
	KindPing  uint32 = 1
)

// Fixed prefix sizes in bytes.
const (
	HeaderPrefixSize    = 18 // tag + width + height + captureTs + frameId + chunksTotal
	DataChunkPrefixSize = 11 // tag + frameId + chunkIndex + chunkSize
	FramePrefixSize     = 28 // kind + width + height + captureTs + sendTs
	PingSize            = 12 // kind + sendTs
	LegacyPingSize      = 8  // kind + 32-bit sendTs
)

// MaxFramePixels bounds width×height of a decoded frame.
const MaxFramePixels = limits.MaxFramePixels

// Variant selects which wire variants a Decoder accepts.
type Variant uint8

const (
	// VariantAuto accepts both variants, discriminated by the first byte.
	VariantAuto Variant = iota
	// VariantTagged accepts only 'H'/'D' packets. Pings are still accepted.
	VariantTagged
	// VariantUntagged accepts only kind-prefixed packets.
	VariantUntagged
)

// String returns a string representation of the variant.
func (v Variant) String() string {
	switch v {
	case VariantAuto:
		return "auto"
	case VariantTagged:
		return "tagged"
	case VariantUntagged:
		return "untagged"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant converts a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "auto", "":
		return VariantAuto, nil
	case "tagged":
		return VariantTagged, nil
	case "untagged":
		return VariantUntagged, nil
	default:
		return VariantAuto, fmt.Errorf("unknown wire variant %q", s)
	}
}

// Packet is implemented by every decoded packet type.
type Packet interface {
	packet()
}

// Header announces a chunked frame and carries piggybacked control fields.
type Header struct {
	FrameID          uint32
	Width            uint16
	Height           uint16
	CaptureTimestamp uint64 // milliseconds since the Unix epoch
	ChunksTotal      uint8
	Extensions       Extensions
}

// DataChunk is one fragment of a chunked frame's planar payload.
type DataChunk struct {
	FrameID    uint32
	ChunkIndex uint16
	ChunkSize  uint32
	Data       []byte // view into the packet
}

// Frame is a complete untagged frame. Plane slices are views into the packet.
type Frame struct {
	Width            uint32
	Height           uint32
	CaptureTimestamp uint64
	SendTimestamp    uint64
	Y, U, V          []byte
}

// Ping carries the send timestamp echoed back by the server.
type Ping struct {
	SendTimestamp uint64
	Legacy        bool // 32-bit timestamp on the wire
}

func (*Header) packet()    {}
func (*DataChunk) packet() {}
func (*Frame) packet()     {}
func (*Ping) packet()      {}

// Extensions holds the optional header fields. Each Has flag mirrors the
// presence byte on the wire.
type Extensions struct {
	HasRemoteControl     bool
	RemoteControlEnabled bool

	HasCursorVisibility bool
	ShowCustomCursor    bool

	HasCursorLocation bool
	Cursor            CursorLocation
}

// Empty reports whether no extension field was present.
func (e Extensions) Empty() bool {
	return !e.HasRemoteControl && !e.HasCursorVisibility && !e.HasCursorLocation
}

// CursorLocation is a remote participant's pointer in normalized [0,1]
// surface coordinates.
type CursorLocation struct {
	X             float64
	Y             float64
	ParticipantID string
}

// PlaneSizes returns the byte sizes of the Y plane and of each chroma plane
// for a planar 4:2:0 frame.
func PlaneSizes(width, height int) (ySize, uvSize int) {
	ySize = width * height
	uvSize = ySize / 4
	return ySize, uvSize
}

// FrameSize returns the total planar 4:2:0 payload size.
func FrameSize(width, height int) int {
	y, uv := PlaneSizes(width, height)
	return y + 2*uv
}

// ValidateDimensions rejects zero and oversized frames.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if !limits.FramePixelsAllowed(width, height) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidDimensions, width, height, MaxFramePixels)
	}
	return nil
}
