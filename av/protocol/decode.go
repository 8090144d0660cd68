package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/opd-ai/pairview/limits"
)

// Decoder parses raw socket payloads into typed packets.
//
// A Decoder holds no per-packet state and is safe for concurrent use.
type Decoder struct {
	variant Variant
}

// NewDecoder creates a decoder restricted to the given wire variant policy.
func NewDecoder(variant Variant) *Decoder {
	return &Decoder{variant: variant}
}

// Variant returns the decoder's variant policy.
func (d *Decoder) Variant() Variant {
	return d.variant
}

// Discriminate reports which wire variant a packet belongs to.
func Discriminate(data []byte) (Variant, error) {
	if len(data) == 0 {
		return VariantAuto, ErrEmptyPacket
	}
	switch data[0] {
	case TagHeader, TagDataChunk:
		return VariantTagged, nil
	case byte(KindFrame), byte(KindPing):
		return VariantUntagged, nil
	default:
		return VariantAuto, fmt.Errorf("%w: leading byte 0x%02x", ErrUnknownKind, data[0])
	}
}

// Decode parses one packet. Returned payload slices alias data.
//
// Pings are accepted under every policy since only the untagged layout
// defines them.
func (d *Decoder) Decode(data []byte) (Packet, error) {
	variant, err := Discriminate(data)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidatePacket(data); err != nil {
		return nil, err
	}

	if variant == VariantTagged {
		if d.variant == VariantUntagged {
			return nil, ErrVariantDisabled
		}
		if data[0] == TagHeader {
			return DecodeHeader(data)
		}
		return DecodeDataChunk(data)
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("%w: kind needs 4 bytes, have %d", ErrTruncated, len(data))
	}
	switch kind := binary.LittleEndian.Uint32(data[0:4]); kind {
	case KindPing:
		return DecodePing(data)
	case KindFrame:
		if d.variant == VariantTagged {
			return nil, ErrVariantDisabled
		}
		return DecodeFrame(data)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownKind, kind)
	}
}

// DecodeHeader parses a tagged 'H' packet including its extension region.
//
// A truncated extension region stops extension parsing; fields decoded
// before the truncation are kept and the header itself remains valid.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < HeaderPrefixSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderPrefixSize, len(data))
	}
	if data[0] != TagHeader {
		return nil, fmt.Errorf("%w: expected header tag, got 0x%02x", ErrUnknownKind, data[0])
	}

	h := &Header{
		Width:            binary.LittleEndian.Uint16(data[1:3]),
		Height:           binary.LittleEndian.Uint16(data[3:5]),
		CaptureTimestamp: binary.LittleEndian.Uint64(data[5:13]),
		FrameID:          binary.LittleEndian.Uint32(data[13:17]),
		ChunksTotal:      data[17],
	}
	if err := ValidateDimensions(int(h.Width), int(h.Height)); err != nil {
		return nil, err
	}

	h.Extensions = decodeExtensions(data[HeaderPrefixSize:])
	return h, nil
}

// decodeExtensions walks the optional field region in wire order.
func decodeExtensions(b []byte) Extensions {
	var ext Extensions
	r := reader{buf: b}

	if present, ok := r.flag(); !ok {
		return ext
	} else if present {
		v, ok := r.byte()
		if !ok {
			return ext
		}
		ext.HasRemoteControl = true
		ext.RemoteControlEnabled = v != 0
	}

	if present, ok := r.flag(); !ok {
		return ext
	} else if present {
		v, ok := r.byte()
		if !ok {
			return ext
		}
		ext.HasCursorVisibility = true
		ext.ShowCustomCursor = v != 0
	}

	if present, ok := r.flag(); !ok || !present {
		return ext
	}
	x, okX := r.float64()
	y, okY := r.float64()
	n, okN := r.uint32()
	if !okX || !okY || !okN || n > limits.MaxParticipantID {
		return ext
	}
	id, ok := r.bytes(int(n))
	if !ok || !utf8.Valid(id) || !normalized(x) || !normalized(y) {
		return ext
	}
	ext.HasCursorLocation = true
	ext.Cursor = CursorLocation{X: x, Y: y, ParticipantID: string(id)}
	return ext
}

func normalized(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// DecodeDataChunk parses a tagged 'D' packet. The chunk is a view into data.
func DecodeDataChunk(data []byte) (*DataChunk, error) {
	if len(data) < DataChunkPrefixSize {
		return nil, fmt.Errorf("%w: chunk needs %d bytes, have %d", ErrTruncated, DataChunkPrefixSize, len(data))
	}
	if data[0] != TagDataChunk {
		return nil, fmt.Errorf("%w: expected data tag, got 0x%02x", ErrUnknownKind, data[0])
	}

	c := &DataChunk{
		FrameID:    binary.LittleEndian.Uint32(data[1:5]),
		ChunkIndex: binary.LittleEndian.Uint16(data[5:7]),
		ChunkSize:  binary.LittleEndian.Uint32(data[7:11]),
	}
	remaining := len(data) - DataChunkPrefixSize
	if uint64(c.ChunkSize) > uint64(remaining) {
		return nil, fmt.Errorf("%w: chunk declares %d bytes, have %d", ErrTruncated, c.ChunkSize, remaining)
	}
	end := DataChunkPrefixSize + int(c.ChunkSize)
	c.Data = data[DataChunkPrefixSize:end:end]
	return c, nil
}

// DecodeFrame parses an untagged single-packet frame. Planes are views into data.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FramePrefixSize {
		return nil, fmt.Errorf("%w: frame needs %d bytes, have %d", ErrTruncated, FramePrefixSize, len(data))
	}

	f := &Frame{
		Width:            binary.LittleEndian.Uint32(data[4:8]),
		Height:           binary.LittleEndian.Uint32(data[8:12]),
		CaptureTimestamp: binary.LittleEndian.Uint64(data[12:20]),
		SendTimestamp:    binary.LittleEndian.Uint64(data[20:28]),
	}
	if f.Width > math.MaxInt32 || f.Height > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, f.Width, f.Height)
	}
	w, h := int(f.Width), int(f.Height)
	if err := ValidateDimensions(w, h); err != nil {
		return nil, err
	}

	ySize, uvSize := PlaneSizes(w, h)
	payload := data[FramePrefixSize:]
	if len(payload) < ySize+2*uvSize {
		return nil, fmt.Errorf("%w: frame planes need %d bytes, have %d", ErrTruncated, ySize+2*uvSize, len(payload))
	}
	f.Y = payload[:ySize:ySize]
	f.U = payload[ySize : ySize+uvSize : ySize+uvSize]
	f.V = payload[ySize+uvSize : ySize+2*uvSize : ySize+2*uvSize]
	return f, nil
}

// DecodePing parses an untagged ping in either the 8-byte or legacy 4-byte
// timestamp form.
func DecodePing(data []byte) (*Ping, error) {
	switch {
	case len(data) >= PingSize:
		return &Ping{SendTimestamp: binary.LittleEndian.Uint64(data[4:12])}, nil
	case len(data) >= LegacyPingSize:
		return &Ping{SendTimestamp: uint64(binary.LittleEndian.Uint32(data[4:8])), Legacy: true}, nil
	default:
		return nil, fmt.Errorf("%w: ping needs %d bytes, have %d", ErrTruncated, LegacyPingSize, len(data))
	}
}

// AppendPing appends a client ping carrying sendTs to dst.
func AppendPing(dst []byte, sendTs uint64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, KindPing)
	return binary.LittleEndian.AppendUint64(dst, sendTs)
}

// reader is a bounds-checked little-endian cursor.
type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || n > len(r.buf)-r.off {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) byte() (byte, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// flag reads a presence byte. A missing flag at the very end of the region
// is reported as !ok so the caller stops.
func (r *reader) flag() (present, ok bool) {
	b, ok := r.byte()
	return b != 0, ok
}

func (r *reader) uint32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (r *reader) float64() (float64, bool) {
	b, ok := r.bytes(8)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), true
}
