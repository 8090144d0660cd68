package video

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pairview/av/protocol"
)

// Reassembly defaults.
const (
	DefaultRingSize   = 64
	DefaultStaleAfter = 5 * time.Second
	DefaultSweepEvery = 100
)

// Config tunes a Reassembler.
type Config struct {
	// RingSize is the number of frame slots. Frame ids map to slots by
	// frameId mod RingSize.
	RingSize int
	// StaleAfter is the age at which an incomplete frame is evicted.
	StaleAfter time.Duration
	// SweepEvery is the number of data chunks between staleness sweeps.
	SweepEvery int
	// TimeProvider supplies arrival times. Nil uses the system clock.
	TimeProvider TimeProvider
}

// DefaultConfig returns the standard reassembly settings.
func DefaultConfig() Config {
	return Config{
		RingSize:     DefaultRingSize,
		StaleAfter:   DefaultStaleAfter,
		SweepEvery:   DefaultSweepEvery,
		TimeProvider: DefaultTimeProvider{},
	}
}

// FrameBuffer accumulates the chunks of one announced frame.
type FrameBuffer struct {
	FrameID          uint32
	Width            int
	Height           int
	CaptureTimestamp uint64
	ChunksTotal      int
	ReceivedAt       time.Time

	chunks   [][]byte // indexed by chunk index; nil until received
	received int
	buf      []byte // sized w·h + 2·(w·h/4) at creation
}

// Received returns the number of distinct chunk indices stored so far.
func (fb *FrameBuffer) Received() int {
	return fb.received
}

// Stats counts reassembly outcomes since creation.
type Stats struct {
	Live              int
	Completed         uint64
	HeadersReplaced   uint64
	InvalidHeaders    uint64
	DroppedUnknown    uint64
	DroppedOutOfRange uint64
	DroppedDuplicate  uint64
	DiscardedGap      uint64
	EvictedStale      uint64
	EvictedCollision  uint64
}

// Reassembler turns headers and data chunks into assembled frames.
type Reassembler struct {
	cfg        Config
	slots      []*FrameBuffer
	live       int
	chunkCount int
	pool       bufferPool
	stats      Stats
}

// NewReassembler creates a reassembler. Zero fields in cfg take their defaults.
func NewReassembler(cfg Config) *Reassembler {
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultSweepEvery
	}
	if cfg.TimeProvider == nil {
		cfg.TimeProvider = DefaultTimeProvider{}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewReassembler",
		"ring_size":   cfg.RingSize,
		"stale_after": cfg.StaleAfter,
		"sweep_every": cfg.SweepEvery,
	}).Info("Creating frame reassembler")

	return &Reassembler{
		cfg:   cfg,
		slots: make([]*FrameBuffer, cfg.RingSize),
	}
}

// SetTimeProvider sets the time provider for deterministic testing.
func (r *Reassembler) SetTimeProvider(tp TimeProvider) {
	r.cfg.TimeProvider = tp
}

func (r *Reassembler) slot(frameID uint32) int {
	return int(frameID % uint32(len(r.slots)))
}

// HandleHeader allocates a FrameBuffer for the announced frame.
//
// A repeated header for a live frame id restarts that frame. A header whose
// slot holds a different frame evicts it.
func (r *Reassembler) HandleHeader(h *protocol.Header) {
	width, height := int(h.Width), int(h.Height)
	if h.ChunksTotal == 0 || protocol.ValidateDimensions(width, height) != nil {
		r.stats.InvalidHeaders++
		logrus.WithFields(logrus.Fields{
			"function":     "Reassembler.HandleHeader",
			"frame_id":     h.FrameID,
			"width":        width,
			"height":       height,
			"chunks_total": h.ChunksTotal,
		}).Debug("Ignoring invalid frame header")
		return
	}

	idx := r.slot(h.FrameID)
	if old := r.slots[idx]; old != nil {
		if old.FrameID == h.FrameID {
			r.stats.HeadersReplaced++
		} else {
			r.stats.EvictedCollision++
			logrus.WithFields(logrus.Fields{
				"function":     "Reassembler.HandleHeader",
				"evicted_id":   old.FrameID,
				"incoming_id":  h.FrameID,
				"chunks_have":  old.received,
				"chunks_total": old.ChunksTotal,
			}).Debug("Evicting incomplete frame on slot collision")
		}
		r.remove(idx)
	}

	r.slots[idx] = &FrameBuffer{
		FrameID:          h.FrameID,
		Width:            width,
		Height:           height,
		CaptureTimestamp: h.CaptureTimestamp,
		ChunksTotal:      int(h.ChunksTotal),
		ReceivedAt:       r.cfg.TimeProvider.Now(),
		chunks:           make([][]byte, h.ChunksTotal),
		buf:              r.pool.get(protocol.FrameSize(width, height)),
	}
	r.live++
}

// HandleChunk stores a data chunk and returns the assembled frame when it
// completes one. Chunks for unknown frames, out-of-range indices and
// duplicates are dropped without touching other frames.
func (r *Reassembler) HandleChunk(c *protocol.DataChunk) (*AssembledFrame, bool) {
	r.chunkCount++
	if r.chunkCount%r.cfg.SweepEvery == 0 {
		r.Sweep()
	}

	idx := r.slot(c.FrameID)
	fb := r.slots[idx]
	if fb == nil || fb.FrameID != c.FrameID {
		r.stats.DroppedUnknown++
		r.traceDrop("unknown frame", c)
		return nil, false
	}
	if int(c.ChunkIndex) >= fb.ChunksTotal {
		r.stats.DroppedOutOfRange++
		r.traceDrop("chunk index out of range", c)
		return nil, false
	}
	if fb.chunks[c.ChunkIndex] != nil {
		r.stats.DroppedDuplicate++
		r.traceDrop("duplicate chunk", c)
		return nil, false
	}

	data := c.Data
	if data == nil {
		data = []byte{}
	}
	fb.chunks[c.ChunkIndex] = data
	fb.received++

	if fb.received < fb.ChunksTotal {
		return nil, false
	}
	return r.complete(idx)
}

// complete copies every chunk into the frame buffer in index order and
// slices out the planes. The buffer leaves the table either way.
func (r *Reassembler) complete(idx int) (*AssembledFrame, bool) {
	fb := r.slots[idx]
	r.slots[idx] = nil
	r.live--

	offset := 0
	for _, chunk := range fb.chunks {
		if len(chunk) > len(fb.buf)-offset {
			r.discard(fb, offset+len(chunk))
			return nil, false
		}
		offset += copy(fb.buf[offset:], chunk)
	}
	if offset != len(fb.buf) {
		r.discard(fb, offset)
		return nil, false
	}

	r.stats.Completed++
	y, u, v := slicePlanes(fb.buf, fb.Width, fb.Height)
	return &AssembledFrame{
		FrameID:          fb.FrameID,
		Width:            fb.Width,
		Height:           fb.Height,
		CaptureTimestamp: fb.CaptureTimestamp,
		ReceivedAt:       fb.ReceivedAt,
		Y:                y,
		U:                u,
		V:                v,
		pool:             &r.pool,
		buf:              fb.buf,
	}, true
}

// discard drops a frame whose chunks do not cover the planar size exactly.
func (r *Reassembler) discard(fb *FrameBuffer, got int) {
	r.stats.DiscardedGap++
	r.pool.put(fb.buf)
	logrus.WithFields(logrus.Fields{
		"function":   "Reassembler.complete",
		"frame_id":   fb.FrameID,
		"want_bytes": len(fb.buf),
		"got_bytes":  got,
	}).Warn("Discarding frame with mismatched chunk coverage")
}

// Sweep evicts frames older than StaleAfter and returns how many it removed.
func (r *Reassembler) Sweep() int {
	cutoff := r.cfg.TimeProvider.Now().Add(-r.cfg.StaleAfter)

	evicted := 0
	for idx, fb := range r.slots {
		if fb != nil && fb.ReceivedAt.Before(cutoff) {
			r.remove(idx)
			evicted++
		}
	}

	if evicted > 0 {
		r.stats.EvictedStale += uint64(evicted)
		logrus.WithFields(logrus.Fields{
			"function": "Reassembler.Sweep",
			"evicted":  evicted,
			"live":     r.live,
		}).Debug("Evicted stale incomplete frames")
	}
	return evicted
}

func (r *Reassembler) remove(idx int) {
	if fb := r.slots[idx]; fb != nil {
		r.pool.put(fb.buf)
		r.slots[idx] = nil
		r.live--
	}
}

// Lookup returns the live buffer for frameID, if any.
func (r *Reassembler) Lookup(frameID uint32) (*FrameBuffer, bool) {
	fb := r.slots[r.slot(frameID)]
	if fb == nil || fb.FrameID != frameID {
		return nil, false
	}
	return fb, true
}

// Len returns the number of live frame buffers.
func (r *Reassembler) Len() int {
	return r.live
}

// Stats returns a snapshot of reassembly counters.
func (r *Reassembler) Stats() Stats {
	s := r.stats
	s.Live = r.live
	return s
}

// Reset drops every live buffer, e.g. after the connection restarts.
func (r *Reassembler) Reset() {
	for idx := range r.slots {
		r.remove(idx)
	}
	r.chunkCount = 0
}

func (r *Reassembler) traceDrop(reason string, c *protocol.DataChunk) {
	if !logrus.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":    "Reassembler.HandleChunk",
		"frame_id":    c.FrameID,
		"chunk_index": c.ChunkIndex,
		"reason":      reason,
	}).Trace("Dropping data chunk")
}
