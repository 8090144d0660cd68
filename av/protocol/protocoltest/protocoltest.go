// Package protocoltest builds wire packets for tests that exercise the
// decoding side of the pairview protocol.
package protocoltest

import (
	"encoding/binary"
	"math"

	"github.com/opd-ai/pairview/av/protocol"
)

// Header returns an 'H' packet followed by the encoded extension region.
func Header(h protocol.Header) []byte {
	b := make([]byte, 0, protocol.HeaderPrefixSize+32)
	b = append(b, protocol.TagHeader)
	b = binary.LittleEndian.AppendUint16(b, h.Width)
	b = binary.LittleEndian.AppendUint16(b, h.Height)
	b = binary.LittleEndian.AppendUint64(b, h.CaptureTimestamp)
	b = binary.LittleEndian.AppendUint32(b, h.FrameID)
	b = append(b, h.ChunksTotal)
	return appendExtensions(b, h.Extensions)
}

func appendExtensions(b []byte, ext protocol.Extensions) []byte {
	if ext.Empty() {
		return b
	}
	b = append(b, boolByte(ext.HasRemoteControl))
	if ext.HasRemoteControl {
		b = append(b, boolByte(ext.RemoteControlEnabled))
	}
	b = append(b, boolByte(ext.HasCursorVisibility))
	if ext.HasCursorVisibility {
		b = append(b, boolByte(ext.ShowCustomCursor))
	}
	b = append(b, boolByte(ext.HasCursorLocation))
	if ext.HasCursorLocation {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(ext.Cursor.X))
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(ext.Cursor.Y))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ext.Cursor.ParticipantID)))
		b = append(b, ext.Cursor.ParticipantID...)
	}
	return b
}

// DataChunk returns a 'D' packet carrying data.
func DataChunk(frameID uint32, index uint16, data []byte) []byte {
	b := make([]byte, 0, protocol.DataChunkPrefixSize+len(data))
	b = append(b, protocol.TagDataChunk)
	b = binary.LittleEndian.AppendUint32(b, frameID)
	b = binary.LittleEndian.AppendUint16(b, index)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

// Chunks splits payload into n nearly equal consecutive data packets.
func Chunks(frameID uint32, payload []byte, n int) [][]byte {
	out := make([][]byte, 0, n)
	size := (len(payload) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		if start > end {
			start = end
		}
		out = append(out, DataChunk(frameID, uint16(i), payload[start:end]))
	}
	return out
}

// Frame returns an untagged single-packet frame.
func Frame(width, height uint32, captureTs, sendTs uint64, y, u, v []byte) []byte {
	b := make([]byte, 0, protocol.FramePrefixSize+len(y)+len(u)+len(v))
	b = binary.LittleEndian.AppendUint32(b, protocol.KindFrame)
	b = binary.LittleEndian.AppendUint32(b, width)
	b = binary.LittleEndian.AppendUint32(b, height)
	b = binary.LittleEndian.AppendUint64(b, captureTs)
	b = binary.LittleEndian.AppendUint64(b, sendTs)
	b = append(b, y...)
	b = append(b, u...)
	return append(b, v...)
}

// LegacyPing returns an untagged ping with a 32-bit timestamp.
func LegacyPing(sendTs uint32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, protocol.KindPing)
	return binary.LittleEndian.AppendUint32(b, sendTs)
}

// Planes returns a 4:2:0 payload whose bytes count upwards, so any
// misplaced chunk shows up in a byte comparison.
func Planes(width, height int) []byte {
	p := make([]byte, protocol.FrameSize(width, height))
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
