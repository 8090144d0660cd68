package pairview

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opd-ai/pairview/av"
	"github.com/opd-ai/pairview/av/protocol"
	"github.com/opd-ai/pairview/av/render"
	"github.com/opd-ai/pairview/av/video"
	"github.com/opd-ai/pairview/transport"
)

const tracerName = "github.com/opd-ai/pairview"

// FrameEvent describes a frame that was drawn onto the session surface.
type FrameEvent struct {
	FrameID          uint32
	Width            int
	Height           int
	CaptureTimestamp uint64
	Sample           av.FrameSample
	DrawDuration     time.Duration
	Surface          *render.Surface
}

// RemoteCursor is a remote participant's pointer position.
type RemoteCursor struct {
	X             float64 // normalized [0,1]
	Y             float64 // normalized [0,1]
	ParticipantID string
	Color         color.RGBA
}

// FrameCallback is called after each frame is drawn.
type FrameCallback func(frame FrameEvent)

// RemoteControlCallback is called when the sharer toggles remote control.
type RemoteControlCallback func(enabled bool)

// CursorVisibilityCallback is called when the sharer toggles the custom cursor.
type CursorVisibilityCallback func(show bool)

// RemoteCursorCallback is called with each remote cursor position.
type RemoteCursorCallback func(cursor RemoteCursor)

// LatencyReportCallback is called with each completed latency window.
type LatencyReportCallback func(report av.Report)

// Session receives a screen-share stream, reassembles and draws its frames
// and tracks pipeline latency.
//
// All packet processing for a session happens on the connection's delivery
// goroutine, strictly in arrival order. Callbacks run on that goroutine
// after the packet that produced them has been processed.
type Session struct {
	id      uuid.UUID
	options *Options

	conn         *transport.Connection
	decoder      *protocol.Decoder
	renderer     render.Renderer
	surface      *render.Surface
	latency      *av.LatencyAggregator
	participants *ParticipantColors
	tracer       trace.Tracer

	// pipelineMu guards the reassembler, counters and pending callbacks.
	pipelineMu     sync.Mutex
	torndown       bool
	reassembler    *video.Reassembler
	pending        []func()
	packetsDropped uint64
	framesDrawn    uint64
	drawErrors     uint64
	pingsSent      uint64

	callbackMu               sync.RWMutex
	frameCallback            FrameCallback
	remoteControlCallback    RemoteControlCallback
	cursorVisibilityCallback CursorVisibilityCallback
	remoteCursorCallback     RemoteCursorCallback
	latencyReportCallback    LatencyReportCallback

	stateMu  sync.Mutex
	started  bool
	stopped  bool
	stopPing chan struct{}
	pingDone chan struct{}
}

// NewSession creates a session from options. The renderer backend is fixed
// for the lifetime of the session.
func NewSession(options *Options) (*Session, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	renderer, err := render.New(options.Backend, render.Config{
		Range:  options.ColorRange,
		Device: options.Device,
		Now:    options.now,
	})
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	s := &Session{
		id:      uuid.New(),
		options: options,
		conn: transport.NewConnection(transport.Config{
			Dialer:    options.Dialer,
			Mode:      options.IOMode,
			QueueSize: options.QueueSize,
			Now:       options.now,
		}),
		decoder:  protocol.NewDecoder(options.Variant),
		renderer: renderer,
		surface:  render.NewSurface(0, 0),
		latency:  av.NewLatencyAggregator(options.MetricsWindow),
		reassembler: video.NewReassembler(video.Config{
			RingSize:     options.RingSize,
			StaleAfter:   options.StaleAfter,
			SweepEvery:   options.SweepEvery,
			TimeProvider: options.TimeProvider,
		}),
		participants: NewParticipantColors(nil, options.MaxParticipants),
		tracer:       otel.Tracer(tracerName),
	}
	s.latency.OnReport(s.queueReport)

	logrus.WithFields(logrus.Fields{
		"function":   "NewSession",
		"session_id": s.id.String(),
		"url":        options.URL,
		"variant":    options.Variant.String(),
		"backend":    options.Backend.String(),
		"range":      options.ColorRange.String(),
		"io_mode":    options.IOMode.String(),
	}).Info("Created session")

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Surface returns the surface frames are drawn onto.
func (s *Session) Surface() *render.Surface {
	return s.surface
}

// Latency returns the session's latency aggregator, e.g. to attach a
// Prometheus exporter.
func (s *Session) Latency() *av.LatencyAggregator {
	return s.latency
}

// Participants returns the session's participant colour registry.
func (s *Session) Participants() *ParticipantColors {
	return s.participants
}

// Connection returns the underlying connection.
func (s *Session) Connection() *transport.Connection {
	return s.conn
}

// Start connects to the stream and, if configured, starts periodic pings.
func (s *Session) Start() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.stopped {
		return ErrSessionStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.conn.Connect(s.options.URL, s.handleMessage); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.started = true

	if s.options.PingInterval > 0 {
		s.stopPing = make(chan struct{})
		s.pingDone = make(chan struct{})
		go s.pingLoop(s.options.PingInterval, s.stopPing, s.pingDone)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Session.Start",
		"session_id": s.id.String(),
		"url":        s.options.URL,
	}).Info("Session started")
	return nil
}

// Stop disconnects, drops partial frames and releases renderer resources.
// A stopped session cannot be restarted.
func (s *Session) Stop() {
	s.stateMu.Lock()
	if s.stopped {
		s.stateMu.Unlock()
		return
	}
	s.stopped = true
	stopPing, pingDone := s.stopPing, s.pingDone
	s.stateMu.Unlock()

	if stopPing != nil {
		close(stopPing)
		<-pingDone
	}
	s.conn.Disconnect()

	// Messages delivered after this point are ignored.
	s.pipelineMu.Lock()
	s.torndown = true
	s.reassembler.Reset()
	s.pending = nil
	s.pipelineMu.Unlock()

	s.surface.Destroy()
	if err := s.renderer.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Session.Stop",
			"session_id": s.id.String(),
			"error":      err.Error(),
		}).Warn("Renderer close failed")
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Session.Stop",
		"session_id": s.id.String(),
	}).Info("Session stopped")
}

// Ping sends a timestamped ping. The echoed packet produces a ping sample.
// It reports false when the connection is not open.
func (s *Session) Ping() bool {
	sendTs := uint64(s.options.now().UnixMilli())
	if !s.conn.Send(protocol.AppendPing(nil, sendTs)) {
		return false
	}
	s.pipelineMu.Lock()
	s.pingsSent++
	s.pipelineMu.Unlock()
	return true
}

func (s *Session) pingLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Ping()
		case <-stop:
			return
		}
	}
}

// OnFrame sets the callback for drawn frames.
func (s *Session) OnFrame(callback FrameCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.frameCallback = callback
}

// OnRemoteControl sets the callback for remote-control toggles.
func (s *Session) OnRemoteControl(callback RemoteControlCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.remoteControlCallback = callback
}

// OnCursorVisibility sets the callback for custom-cursor toggles.
func (s *Session) OnCursorVisibility(callback CursorVisibilityCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.cursorVisibilityCallback = callback
}

// OnRemoteCursor sets the callback for remote cursor positions.
func (s *Session) OnRemoteCursor(callback RemoteCursorCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.remoteCursorCallback = callback
}

// OnLatencyReport sets the callback for completed latency windows.
func (s *Session) OnLatencyReport(callback LatencyReportCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.latencyReportCallback = callback
}

// OnConnectionStatus registers a handler for connection status changes.
func (s *Session) OnConnectionStatus(callback transport.StatusHandler) {
	s.conn.OnStatus(callback)
}

// handleMessage processes one socket message and then runs the callbacks
// it produced.
func (s *Session) handleMessage(m transport.Message) {
	s.pipelineMu.Lock()
	if s.torndown {
		s.pipelineMu.Unlock()
		return
	}
	s.process(m)
	pending := s.pending
	s.pending = nil
	s.pipelineMu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (s *Session) process(m transport.Message) {
	pkt, err := s.decoder.Decode(m.Data)
	if err != nil {
		s.packetsDropped++
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.WithFields(logrus.Fields{
				"function":   "Session.process",
				"session_id": s.id.String(),
				"size":       len(m.Data),
				"error":      err.Error(),
			}).Debug("Dropping undecodable packet")
		}
		return
	}

	switch p := pkt.(type) {
	case *protocol.Header:
		s.dispatchControl(p.Extensions)
		s.reassembler.HandleHeader(p)
	case *protocol.DataChunk:
		if frame, ok := s.reassembler.HandleChunk(p); ok {
			s.present(frame)
		}
	case *protocol.Frame:
		s.present(video.FromUntagged(p, m.ReceivedAt))
	case *protocol.Ping:
		s.latency.ObservePing(p.SendTimestamp, p.Legacy, m.ReceivedAt)
	}
}

// dispatchControl queues the side-channel events carried by a header.
func (s *Session) dispatchControl(ext protocol.Extensions) {
	if ext.Empty() {
		return
	}

	s.callbackMu.RLock()
	remoteControl := s.remoteControlCallback
	cursorVisibility := s.cursorVisibilityCallback
	remoteCursor := s.remoteCursorCallback
	s.callbackMu.RUnlock()

	if ext.HasRemoteControl && remoteControl != nil {
		enabled := ext.RemoteControlEnabled
		s.pending = append(s.pending, func() { remoteControl(enabled) })
	}
	if ext.HasCursorVisibility && cursorVisibility != nil {
		show := ext.ShowCustomCursor
		s.pending = append(s.pending, func() { cursorVisibility(show) })
	}
	if ext.HasCursorLocation {
		cursor := RemoteCursor{
			X:             ext.Cursor.X,
			Y:             ext.Cursor.Y,
			ParticipantID: ext.Cursor.ParticipantID,
			Color:         s.participants.Color(ext.Cursor.ParticipantID),
		}
		if remoteCursor != nil {
			s.pending = append(s.pending, func() { remoteCursor(cursor) })
		}
	}
}

// present draws a completed frame and records its latency. The frame's
// storage is released before returning.
func (s *Session) present(frame *video.AssembledFrame) {
	defer frame.Release()

	_, span := s.tracer.Start(context.Background(), "render.draw",
		trace.WithAttributes(
			attribute.String("pairview.session_id", s.id.String()),
			attribute.Int64("pairview.frame_id", int64(frame.FrameID)),
			attribute.Int("pairview.width", frame.Width),
			attribute.Int("pairview.height", frame.Height),
			attribute.String("pairview.backend", s.renderer.Backend().String()),
		),
	)
	sample, err := s.renderer.Draw(s.surface, frame.Y, frame.U, frame.V, frame.Width, frame.Height, frame.CaptureTimestamp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		s.drawErrors++
		if errors.Is(err, render.ErrSurfaceDestroyed) {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function":   "Session.present",
			"session_id": s.id.String(),
			"frame_id":   frame.FrameID,
			"error":      err.Error(),
		}).Warn("Frame not drawn")
		return
	}
	span.SetStatus(codes.Ok, "")
	span.End()
	s.framesDrawn++

	fs := s.latency.ObserveFrame(av.FrameTiming{
		CaptureTimestamp: frame.CaptureTimestamp,
		SendTimestamp:    frame.SendTimestamp,
		ReceivedAt:       frame.ReceivedAt,
		BeforeDraw:       sample.BeforeDraw,
		AfterDraw:        sample.AfterDraw,
	})

	s.callbackMu.RLock()
	callback := s.frameCallback
	s.callbackMu.RUnlock()
	if callback != nil {
		event := FrameEvent{
			FrameID:          frame.FrameID,
			Width:            frame.Width,
			Height:           frame.Height,
			CaptureTimestamp: frame.CaptureTimestamp,
			Sample:           fs,
			DrawDuration:     sample.Duration(),
			Surface:          s.surface,
		}
		s.pending = append(s.pending, func() { callback(event) })
	}
}

// queueReport runs inside ObserveFrame while pipelineMu is held.
func (s *Session) queueReport(report av.Report) {
	s.callbackMu.RLock()
	callback := s.latencyReportCallback
	s.callbackMu.RUnlock()
	if callback != nil {
		s.pending = append(s.pending, func() { callback(report) })
	}
}
