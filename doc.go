// Package pairview implements the receiving side of a pairing screen share:
// a persistent binary socket carrying video frames, piggybacked control
// events and latency pings.
//
// # Getting Started
//
// Create a session with options, register callbacks and start it:
//
//	options := pairview.NewOptions()
//	options.URL = "wss://pair.example.com/stream"
//	options.Backend = render.BackendShader
//
//	session, err := pairview.NewSession(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Stop()
//
//	session.OnFrame(func(f pairview.FrameEvent) {
//	    present(f.Surface.Image())
//	})
//	session.OnRemoteCursor(func(c pairview.RemoteCursor) {
//	    drawPointer(c.X, c.Y, c.Color)
//	})
//
//	if err := session.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Pipeline
//
// Each socket message flows through the same stages, on one goroutine and
// in arrival order:
//
//   - [transport.Connection] delivers the message, either from its I/O
//     worker or directly from the socket.
//   - [protocol.Decoder] classifies it as a tagged header or data chunk, an
//     untagged frame, or a ping.
//   - Header control fields are dispatched to the control callbacks.
//   - [video.Reassembler] collects chunks until a frame is complete.
//   - The configured [render.Renderer] draws the frame onto the session
//     surface.
//   - [av.LatencyAggregator] records the stage timings and reports window
//     averages.
//
// Frames are drawn in completion order. There is no reorder buffer, so a
// frame that completes late is still drawn after newer ones.
//
// # Reconnection
//
// A session never reconnects on its own. Watch [Session.OnConnectionStatus]
// and create a new session when the stream should resume.
package pairview
