// Package video reassembles chunked planar 4:2:0 frames for pairview.
//
// A tagged stream announces each frame with a header, then delivers its
// payload as data chunks that may arrive in any order. The Reassembler keeps
// one FrameBuffer per live frame id and emits an AssembledFrame once every
// chunk index has arrived:
//
//	r := video.NewReassembler(video.DefaultConfig())
//	r.HandleHeader(header)
//	if frame, ok := r.HandleChunk(chunk); ok {
//	    renderer.Draw(surface, frame.Y, frame.U, frame.V, frame.Width, frame.Height, frame.CaptureTimestamp)
//	    frame.Release()
//	}
//
// # Storage
//
// Frame ids wrap, so buffers live in a fixed slot table indexed by
// frameId mod RingSize rather than in an unbounded map. A header whose slot
// is held by a different live frame evicts the older occupant.
//
// Chunks are kept as views into the packets that carried them. The only copy
// happens on completion, when chunks are written in index order into the
// buffer allocated for the frame. Plane sizes are fixed by the header
// dimensions and never change.
//
// # Loss handling
//
// Every SweepEvery data chunks the reassembler drops buffers older than
// StaleAfter (5 s by default), measured from header arrival. A frame whose
// chunks do not add up to exactly the planar size is discarded rather than
// displayed with unwritten regions.
//
// # Ordering
//
// Frames are emitted in completion order. There is no reorder buffer, so a
// late-completing older frame is displayed after a newer one.
//
// # Thread Safety
//
// Reassembler is NOT thread-safe. All packets for a stream must be fed from
// one goroutine in arrival order; pairview's session does this on its
// dispatch goroutine.
package video
