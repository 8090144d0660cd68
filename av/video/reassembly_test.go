package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/pairview/av/protocol"
)

type mockTimeProvider struct {
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time { return m.now }

func (m *mockTimeProvider) Advance(d time.Duration) { m.now = m.now.Add(d) }

func newTestReassembler() (*Reassembler, *mockTimeProvider) {
	tp := &mockTimeProvider{now: time.Unix(1700000000, 0)}
	r := NewReassembler(DefaultConfig())
	r.SetTimeProvider(tp)
	return r, tp
}

func testPayload(width, height int) []byte {
	p := make([]byte, protocol.FrameSize(width, height))
	for i := range p {
		p[i] = byte(i*31 + 7)
	}
	return p
}

func header(frameID uint32, width, height uint16, chunks uint8) *protocol.Header {
	return &protocol.Header{
		FrameID:          frameID,
		Width:            width,
		Height:           height,
		CaptureTimestamp: 1700000000000,
		ChunksTotal:      chunks,
	}
}

func chunk(frameID uint32, index uint16, data []byte) *protocol.DataChunk {
	return &protocol.DataChunk{FrameID: frameID, ChunkIndex: index, ChunkSize: uint32(len(data)), Data: data}
}

func TestReassembler_OutOfOrderChunks(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(64, 64)
	half := len(payload) / 2

	r.HandleHeader(header(5, 64, 64, 2))
	require.Equal(t, 1, r.Len())

	frame, ok := r.HandleChunk(chunk(5, 1, payload[half:]))
	assert.False(t, ok)
	assert.Nil(t, frame)

	frame, ok = r.HandleChunk(chunk(5, 0, payload[:half]))
	require.True(t, ok)
	require.NotNil(t, frame)

	ySize, uvSize := protocol.PlaneSizes(64, 64)
	assert.Equal(t, payload[:ySize], frame.Y)
	assert.Equal(t, payload[ySize:ySize+uvSize], frame.U)
	assert.Equal(t, payload[ySize+uvSize:], frame.V)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, 64, frame.Height)
	assert.Equal(t, uint64(1700000000000), frame.CaptureTimestamp)
	assert.Equal(t, 0, r.Len(), "completed frame must leave the table")
	assert.Equal(t, uint64(1), r.Stats().Completed)
}

func TestReassembler_OrderIndependence(t *testing.T) {
	payload := testPayload(32, 16)
	const n = 5
	size := (len(payload) + n - 1) / n
	parts := make([][]byte, n)
	for i := range parts {
		end := (i + 1) * size
		if end > len(payload) {
			end = len(payload)
		}
		parts[i] = payload[i*size : end]
	}

	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}}
	for _, order := range orders {
		r, _ := newTestReassembler()
		r.HandleHeader(header(9, 32, 16, n))

		var frame *AssembledFrame
		for i, idx := range order {
			f, ok := r.HandleChunk(chunk(9, uint16(idx), parts[idx]))
			if i < len(order)-1 {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)
			frame = f
		}

		joined := append(append(append([]byte{}, frame.Y...), frame.U...), frame.V...)
		assert.Equal(t, payload, joined, "order %v", order)
	}
}

func TestReassembler_UnknownFrameDropped(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)

	r.HandleHeader(header(1, 16, 16, 2))
	_, ok := r.HandleChunk(chunk(1, 0, payload[:10]))
	require.False(t, ok)

	assert.NotPanics(t, func() {
		_, ok = r.HandleChunk(chunk(2, 0, payload))
	})
	assert.False(t, ok)

	fb, found := r.Lookup(1)
	require.True(t, found)
	assert.Equal(t, 1, fb.Received(), "other frame must be untouched")
	assert.Equal(t, uint64(1), r.Stats().DroppedUnknown)

	// Same slot, different id.
	_, ok = r.HandleChunk(chunk(1+DefaultRingSize, 1, payload[10:]))
	assert.False(t, ok)
	assert.Equal(t, 1, fb.Received())
}

func TestReassembler_ChunkAfterCompletionDropped(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)

	r.HandleHeader(header(3, 16, 16, 1))
	_, ok := r.HandleChunk(chunk(3, 0, payload))
	require.True(t, ok)

	_, ok = r.HandleChunk(chunk(3, 0, payload))
	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Stats().DroppedUnknown)
}

func TestReassembler_OutOfRangeAndDuplicate(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)
	half := len(payload) / 2

	r.HandleHeader(header(4, 16, 16, 2))
	_, ok := r.HandleChunk(chunk(4, 2, payload[:half]))
	assert.False(t, ok)
	_, ok = r.HandleChunk(chunk(4, 0, payload[:half]))
	assert.False(t, ok)
	_, ok = r.HandleChunk(chunk(4, 0, payload[:half]))
	assert.False(t, ok)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.DroppedOutOfRange)
	assert.Equal(t, uint64(1), stats.DroppedDuplicate)

	_, ok = r.HandleChunk(chunk(4, 1, payload[half:]))
	assert.True(t, ok)
}

func TestReassembler_GapDiscardsFrame(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)

	r.HandleHeader(header(6, 16, 16, 2))
	_, ok := r.HandleChunk(chunk(6, 0, payload[:100]))
	require.False(t, ok)
	frame, ok := r.HandleChunk(chunk(6, 1, payload[200:]))

	assert.False(t, ok)
	assert.Nil(t, frame)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(1), r.Stats().DiscardedGap)
}

func TestReassembler_OverflowDiscardsFrame(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)
	oversized := append(append([]byte{}, payload...), 1, 2, 3)

	r.HandleHeader(header(8, 16, 16, 1))
	_, ok := r.HandleChunk(chunk(8, 0, oversized))

	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Stats().DiscardedGap)
}

func TestReassembler_StaleEvictionOnPeriodicSweep(t *testing.T) {
	r, tp := newTestReassembler()

	r.HandleHeader(header(10, 16, 16, 2))
	tp.Advance(4 * time.Second)
	r.HandleHeader(header(11, 16, 16, 2))
	require.Equal(t, 2, r.Len())

	tp.Advance(1001 * time.Millisecond) // frame 10 is now 5001ms old

	// 99 chunks for unknown frames: no sweep yet.
	for i := 0; i < DefaultSweepEvery-1; i++ {
		r.HandleChunk(chunk(1000, 0, []byte{1}))
	}
	assert.Equal(t, 2, r.Len())

	// The 100th processed chunk triggers the sweep.
	r.HandleChunk(chunk(1000, 0, []byte{1}))
	assert.Equal(t, 1, r.Len())

	_, found := r.Lookup(10)
	assert.False(t, found)
	_, found = r.Lookup(11)
	assert.True(t, found)
	assert.Equal(t, uint64(1), r.Stats().EvictedStale)
}

func TestReassembler_SweepKeepsFreshFrames(t *testing.T) {
	r, tp := newTestReassembler()
	r.HandleHeader(header(1, 16, 16, 2))

	tp.Advance(5 * time.Second)
	assert.Equal(t, 0, r.Sweep(), "exactly 5000ms is not stale")

	tp.Advance(time.Millisecond)
	assert.Equal(t, 1, r.Sweep())
}

func TestReassembler_SlotCollisionEvictsOlder(t *testing.T) {
	tp := &mockTimeProvider{now: time.Unix(0, 0)}
	r := NewReassembler(Config{RingSize: 4, TimeProvider: tp})

	r.HandleHeader(header(1, 16, 16, 2))
	r.HandleHeader(header(5, 16, 16, 2)) // 5 mod 4 == 1

	assert.Equal(t, 1, r.Len())
	_, found := r.Lookup(1)
	assert.False(t, found)
	_, found = r.Lookup(5)
	assert.True(t, found)
	assert.Equal(t, uint64(1), r.Stats().EvictedCollision)
}

func TestReassembler_FrameIDWraparound(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)

	r.HandleHeader(header(^uint32(0), 16, 16, 1))
	r.HandleHeader(header(0, 16, 16, 1))
	assert.Equal(t, 2, r.Len())

	_, ok := r.HandleChunk(chunk(^uint32(0), 0, payload))
	assert.True(t, ok)
	_, ok = r.HandleChunk(chunk(0, 0, payload))
	assert.True(t, ok)
}

func TestReassembler_RepeatedHeaderRestartsFrame(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)
	half := len(payload) / 2

	r.HandleHeader(header(2, 16, 16, 2))
	r.HandleChunk(chunk(2, 0, payload[:half]))
	r.HandleHeader(header(2, 16, 16, 2))

	fb, found := r.Lookup(2)
	require.True(t, found)
	assert.Equal(t, 0, fb.Received())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, uint64(1), r.Stats().HeadersReplaced)
}

func TestReassembler_InvalidHeaderIgnored(t *testing.T) {
	r, _ := newTestReassembler()

	r.HandleHeader(header(1, 16, 16, 0))
	r.HandleHeader(header(2, 0, 16, 1))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(2), r.Stats().InvalidHeaders)
}

func TestReassembler_PlaneSizesFixedAtCreation(t *testing.T) {
	r, _ := newTestReassembler()
	r.HandleHeader(header(1, 40, 20, 1))

	fb, found := r.Lookup(1)
	require.True(t, found)
	assert.Len(t, fb.buf, 40*20+2*(40*20/4))
}

func TestReassembler_Reset(t *testing.T) {
	r, _ := newTestReassembler()
	r.HandleHeader(header(1, 16, 16, 2))
	r.HandleHeader(header(2, 16, 16, 2))

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestAssembledFrame_ReleaseRecyclesBuffer(t *testing.T) {
	r, _ := newTestReassembler()
	payload := testPayload(16, 16)

	r.HandleHeader(header(1, 16, 16, 1))
	frame, ok := r.HandleChunk(chunk(1, 0, payload))
	require.True(t, ok)

	frame.Release()
	assert.Nil(t, frame.Y)
	assert.NotPanics(t, frame.Release)

	var nilFrame *AssembledFrame
	assert.NotPanics(t, nilFrame.Release)
}

func TestFromUntagged(t *testing.T) {
	planes := testPayload(4, 4)
	f := &protocol.Frame{
		Width: 4, Height: 4, CaptureTimestamp: 10, SendTimestamp: 20,
		Y: planes[:16], U: planes[16:20], V: planes[20:24],
	}
	at := time.Unix(5, 0)

	frame := FromUntagged(f, at)
	assert.Equal(t, 4, frame.Width)
	assert.Equal(t, uint64(20), frame.SendTimestamp)
	assert.Equal(t, at, frame.ReceivedAt)
	assert.Same(t, &planes[0], &frame.Y[0], "planes must alias the packet")
	assert.NotPanics(t, frame.Release)
}
