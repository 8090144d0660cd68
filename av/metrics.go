// Package av aggregates end-to-end latency for the pairview video pipeline.
//
// This file implements the windowed latency aggregator. Every frame that
// reaches the screen contributes one sample; every echoed ping contributes a
// round-trip sample. Once per window the averages are reported and all
// accumulators restart from zero.
package av

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultWindowSize is the number of drawn frames per report.
const DefaultWindowSize = 30

// FrameTiming carries the timestamps observed for one drawn frame.
type FrameTiming struct {
	CaptureTimestamp uint64 // ms since the Unix epoch, from the sender
	SendTimestamp    uint64 // ms since the Unix epoch, 0 when the wire variant omits it
	ReceivedAt       time.Time
	BeforeDraw       time.Time
	AfterDraw        time.Time
}

// FrameSample is a FrameTiming reduced to stage durations in milliseconds.
type FrameSample struct {
	CaptureToSend    float64
	Network          float64 // send→receive, or capture→receive without a send timestamp
	ReceiveToDraw    float64
	Draw             float64
	HasSendTimestamp bool
}

// Report holds the averages of one completed window. All values are in
// milliseconds.
type Report struct {
	Frames        int
	CaptureToSend float64
	Network       float64
	ReceiveToDraw float64
	Draw          float64
	PingRTT       float64
	PingSamples   int
	Timestamp     time.Time
}

// Sums exposes the raw accumulators of the open window.
type Sums struct {
	Frames         int
	FramesWithSend int
	CaptureToSend  float64
	Network        float64
	ReceiveToDraw  float64
	Draw           float64
	PingRTT        float64
	PingSamples    int
}

// Observer receives every sample and every window report.
type Observer interface {
	ObserveFrame(sample FrameSample)
	ObservePing(rttMs float64)
	ObserveReport(report Report)
}

// LatencyAggregator maintains non-overlapping windows of frame latency.
//
// Example usage:
//
//	aggregator := av.NewLatencyAggregator(av.DefaultWindowSize)
//	aggregator.OnReport(func(r av.Report) {
//	    fmt.Printf("network %.1fms, draw %.1fms\n", r.Network, r.Draw)
//	})
//	aggregator.ObserveFrame(timing)
type LatencyAggregator struct {
	mu         sync.RWMutex
	windowSize int
	sums       Sums
	lastReport *Report

	reportCallback func(report Report)
	observers      []Observer
}

// NewLatencyAggregator creates an aggregator reporting every windowSize
// frames. A non-positive size uses DefaultWindowSize.
func NewLatencyAggregator(windowSize int) *LatencyAggregator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewLatencyAggregator",
		"window_size": windowSize,
	}).Info("Creating latency aggregator")

	return &LatencyAggregator{windowSize: windowSize}
}

// OnReport registers the callback invoked with each window's averages. The
// callback runs synchronously on the goroutine that completed the window.
func (la *LatencyAggregator) OnReport(callback func(report Report)) {
	la.mu.Lock()
	defer la.mu.Unlock()
	la.reportCallback = callback
}

// AddObserver attaches an observer such as a Prometheus exporter.
func (la *LatencyAggregator) AddObserver(o Observer) {
	la.mu.Lock()
	defer la.mu.Unlock()
	la.observers = append(la.observers, o)
}

// ObservePing records a round-trip sample for an echoed ping. Legacy pings
// carry a 32-bit timestamp, so their difference is taken modulo 2^32.
func (la *LatencyAggregator) ObservePing(sendTs uint64, legacy bool, receivedAt time.Time) float64 {
	var rtt float64
	if legacy {
		now := uint32(receivedAt.UnixMilli())
		rtt = float64(now - uint32(sendTs))
	} else {
		rtt = millis(receivedAt) - float64(sendTs)
	}

	la.mu.Lock()
	la.sums.PingRTT += rtt
	la.sums.PingSamples++
	observers := la.observers
	la.mu.Unlock()

	for _, o := range observers {
		o.ObservePing(rtt)
	}
	return rtt
}

// ObserveFrame records one drawn frame. On every windowSize-th frame the
// averages are reported and every accumulator, pings included, is reset.
func (la *LatencyAggregator) ObserveFrame(t FrameTiming) FrameSample {
	sample := Sample(t)

	la.mu.Lock()
	s := &la.sums
	s.Frames++
	if sample.HasSendTimestamp {
		s.FramesWithSend++
		s.CaptureToSend += sample.CaptureToSend
	}
	s.Network += sample.Network
	s.ReceiveToDraw += sample.ReceiveToDraw
	s.Draw += sample.Draw

	var report *Report
	if s.Frames >= la.windowSize {
		r := la.average()
		report = &r
		la.lastReport = report
		la.sums = Sums{}
	}
	callback := la.reportCallback
	observers := la.observers
	la.mu.Unlock()

	for _, o := range observers {
		o.ObserveFrame(sample)
	}
	if report != nil {
		la.emit(*report, callback, observers)
	}
	return sample
}

// average computes the window report. Callers hold la.mu.
func (la *LatencyAggregator) average() Report {
	s := la.sums
	n := float64(s.Frames)
	r := Report{
		Frames:        s.Frames,
		Network:       s.Network / n,
		ReceiveToDraw: s.ReceiveToDraw / n,
		Draw:          s.Draw / n,
		PingSamples:   s.PingSamples,
		Timestamp:     time.Now(),
	}
	if s.FramesWithSend > 0 {
		r.CaptureToSend = s.CaptureToSend / float64(s.FramesWithSend)
	}
	if s.PingSamples > 0 {
		r.PingRTT = s.PingRTT / float64(s.PingSamples)
	}
	return r
}

func (la *LatencyAggregator) emit(r Report, callback func(Report), observers []Observer) {
	logrus.WithFields(logrus.Fields{
		"function":        "LatencyAggregator.emit",
		"frames":          r.Frames,
		"capture_to_send": r.CaptureToSend,
		"network_ms":      r.Network,
		"receive_to_draw": r.ReceiveToDraw,
		"draw_ms":         r.Draw,
		"ping_rtt_ms":     r.PingRTT,
	}).Debug("Latency window complete")

	for _, o := range observers {
		o.ObserveReport(r)
	}
	if callback != nil {
		callback(r)
	}
}

// Snapshot returns the accumulators of the currently open window.
func (la *LatencyAggregator) Snapshot() Sums {
	la.mu.RLock()
	defer la.mu.RUnlock()
	return la.sums
}

// LastReport returns the most recent window report, if any.
func (la *LatencyAggregator) LastReport() (Report, bool) {
	la.mu.RLock()
	defer la.mu.RUnlock()
	if la.lastReport == nil {
		return Report{}, false
	}
	return *la.lastReport, true
}

// WindowSize returns the number of frames per report.
func (la *LatencyAggregator) WindowSize() int {
	return la.windowSize
}

// Sample converts timestamps into stage durations.
func Sample(t FrameTiming) FrameSample {
	capture := float64(t.CaptureTimestamp)
	received := millis(t.ReceivedAt)

	s := FrameSample{
		ReceiveToDraw: float64(t.BeforeDraw.Sub(t.ReceivedAt).Microseconds()) / 1000,
		Draw:          float64(t.AfterDraw.Sub(t.BeforeDraw).Microseconds()) / 1000,
	}
	if t.SendTimestamp != 0 {
		send := float64(t.SendTimestamp)
		s.HasSendTimestamp = true
		s.CaptureToSend = send - capture
		s.Network = received - send
	} else {
		s.Network = received - capture
	}
	return s
}

// millis returns t as fractional milliseconds since the Unix epoch.
func millis(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1000
}
