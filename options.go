package pairview

import (
	"fmt"
	"time"

	"github.com/opd-ai/pairview/av"
	"github.com/opd-ai/pairview/av/protocol"
	"github.com/opd-ai/pairview/av/render"
	"github.com/opd-ai/pairview/av/video"
	"github.com/opd-ai/pairview/transport"
)

// Options contains configuration for a Session.
type Options struct {
	// URL of the stream socket, e.g. wss://host/stream.
	URL string

	// Variant restricts the accepted wire variants.
	Variant protocol.Variant
	// Backend is the renderer chosen at construction.
	Backend render.Backend
	// ColorRange is the YUV value range of incoming frames.
	ColorRange render.ColorRange
	// Device backs the shader renderer. Nil uses a software device.
	Device render.Device

	// IOMode selects worker or direct socket I/O.
	IOMode transport.IOMode
	// QueueSize is the capacity of the worker channels.
	QueueSize int
	// Dialer overrides the WebSocket dialer.
	Dialer transport.Dialer

	// RingSize is the number of in-flight frame slots.
	RingSize int
	// StaleAfter is the age at which incomplete frames are evicted.
	StaleAfter time.Duration
	// SweepEvery is the number of data chunks between staleness sweeps.
	SweepEvery int

	// MetricsWindow is the number of drawn frames per latency report.
	MetricsWindow int
	// PingInterval enables periodic pings when positive.
	PingInterval time.Duration

	// MaxParticipants caps the remote cursor colour registry.
	MaxParticipants int

	// TimeProvider supplies arrival times. Nil uses the system clock.
	TimeProvider video.TimeProvider
}

// NewOptions creates a new Options instance with default values.
func NewOptions() *Options {
	return &Options{
		Variant:         protocol.VariantAuto,
		Backend:         render.BackendHardware,
		ColorRange:      render.RangeLimited,
		IOMode:          transport.IOWorker,
		QueueSize:       transport.DefaultQueueSize,
		RingSize:        video.DefaultRingSize,
		StaleAfter:      video.DefaultStaleAfter,
		SweepEvery:      video.DefaultSweepEvery,
		MetricsWindow:   av.DefaultWindowSize,
		PingInterval:    0, // Disabled by default
		MaxParticipants: DefaultMaxParticipants,
		TimeProvider:    video.DefaultTimeProvider{},
	}
}

// Validate checks the options for values a session cannot run with.
func (o *Options) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidOptions)
	}
	if o.RingSize < 0 || o.SweepEvery < 0 || o.MetricsWindow < 0 || o.QueueSize < 0 || o.MaxParticipants < 0 {
		return fmt.Errorf("%w: sizes must not be negative", ErrInvalidOptions)
	}
	if o.StaleAfter < 0 || o.PingInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidOptions)
	}
	return nil
}

func (o *Options) now() time.Time {
	if o.TimeProvider == nil {
		return time.Now()
	}
	return o.TimeProvider.Now()
}
