package video

import (
	"sync"
	"time"

	"github.com/opd-ai/pairview/av/protocol"
)

// AssembledFrame is a complete planar 4:2:0 frame ready for drawing.
//
// Y, U and V are views into storage owned by the frame. They stay valid
// until Release is called; callers must not retain them past the draw that
// consumes the frame.
type AssembledFrame struct {
	FrameID          uint32
	Width            int
	Height           int
	CaptureTimestamp uint64 // ms since the Unix epoch
	SendTimestamp    uint64 // ms since the Unix epoch, 0 when the wire variant omits it
	ReceivedAt       time.Time
	Y, U, V          []byte

	pool *bufferPool
	buf  []byte
}

// Release hands the backing storage back for reuse. The plane views must not
// be used afterwards. Release on a frame without pooled storage is a no-op.
func (f *AssembledFrame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	f.pool.put(f.buf)
	f.pool, f.buf = nil, nil
	f.Y, f.U, f.V = nil, nil, nil
}

// FromUntagged wraps a single-packet frame without copying. The planes alias
// the packet, so the packet buffer must not be reused until the draw ends.
func FromUntagged(f *protocol.Frame, receivedAt time.Time) *AssembledFrame {
	return &AssembledFrame{
		Width:            int(f.Width),
		Height:           int(f.Height),
		CaptureTimestamp: f.CaptureTimestamp,
		SendTimestamp:    f.SendTimestamp,
		ReceivedAt:       receivedAt,
		Y:                f.Y,
		U:                f.U,
		V:                f.V,
	}
}

// slicePlanes cuts Y/U/V views out of a contiguous planar buffer.
func slicePlanes(buf []byte, width, height int) (y, u, v []byte) {
	ySize, uvSize := protocol.PlaneSizes(width, height)
	y = buf[:ySize:ySize]
	u = buf[ySize : ySize+uvSize : ySize+uvSize]
	v = buf[ySize+uvSize : ySize+2*uvSize : ySize+2*uvSize]
	return y, u, v
}

// bufferPool recycles assembly buffers. Screen shares keep one resolution for
// long stretches, so a released buffer nearly always fits the next frame.
type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) get(size int) []byte {
	if v := p.pool.Get(); v != nil {
		b := *(v.(*[]byte))
		if cap(b) >= size {
			return b[:size]
		}
	}
	return make([]byte, size)
}

func (p *bufferPool) put(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
