package av

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExporterConfig configures the Prometheus latency exporter.
type ExporterConfig struct {
	// Namespace is the metrics namespace (default: "pairview").
	Namespace string

	// Subsystem is the metrics subsystem (default: "latency").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets in milliseconds.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// ExporterOption configures the Prometheus latency exporter.
type ExporterOption func(*ExporterConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) ExporterOption {
	return func(c *ExporterConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) ExporterOption {
	return func(c *ExporterConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) ExporterOption {
	return func(c *ExporterConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) ExporterOption {
	return func(c *ExporterConfig) {
		c.Registry = registry
	}
}

func defaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		Namespace: "pairview",
		Subsystem: "latency",
		Buckets:   []float64{1, 2, 5, 10, 16, 33, 50, 100, 250, 500, 1000},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// PrometheusExporter publishes latency samples and window averages.
// It implements Observer.
type PrometheusExporter struct {
	stages  *prometheus.HistogramVec
	pingRTT prometheus.Histogram
	window  *prometheus.GaugeVec
	frames  prometheus.Counter
	reports prometheus.Counter
}

// Stage label values.
const (
	StageCaptureToSend = "capture_to_send"
	StageNetwork       = "network"
	StageReceiveToDraw = "receive_to_draw"
	StageDraw          = "draw"
	StagePingRTT       = "ping_rtt"
)

// NewPrometheusExporter registers the latency metrics.
func NewPrometheusExporter(opts ...ExporterOption) *PrometheusExporter {
	config := defaultExporterConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &PrometheusExporter{
		stages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stage_milliseconds",
			Help:        "Per-frame latency of each pipeline stage in milliseconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"stage"}),

		pingRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ping_rtt_milliseconds",
			Help:        "Ping round-trip time in milliseconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		window: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "window_average_milliseconds",
			Help:        "Average stage latency over the last completed window",
			ConstLabels: config.ConstLabels,
		}, []string{"stage"}),

		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of drawn frames observed",
			ConstLabels: config.ConstLabels,
		}),

		reports: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "windows_total",
			Help:        "Total number of completed latency windows",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveFrame records one frame's stage durations.
func (e *PrometheusExporter) ObserveFrame(s FrameSample) {
	e.frames.Inc()
	if s.HasSendTimestamp {
		e.stages.WithLabelValues(StageCaptureToSend).Observe(s.CaptureToSend)
	}
	e.stages.WithLabelValues(StageNetwork).Observe(s.Network)
	e.stages.WithLabelValues(StageReceiveToDraw).Observe(s.ReceiveToDraw)
	e.stages.WithLabelValues(StageDraw).Observe(s.Draw)
}

// ObservePing records a ping round trip.
func (e *PrometheusExporter) ObservePing(rttMs float64) {
	e.pingRTT.Observe(rttMs)
}

// ObserveReport publishes a window's averages as gauges.
func (e *PrometheusExporter) ObserveReport(r Report) {
	e.reports.Inc()
	e.window.WithLabelValues(StageCaptureToSend).Set(r.CaptureToSend)
	e.window.WithLabelValues(StageNetwork).Set(r.Network)
	e.window.WithLabelValues(StageReceiveToDraw).Set(r.ReceiveToDraw)
	e.window.WithLabelValues(StageDraw).Set(r.Draw)
	e.window.WithLabelValues(StagePingRTT).Set(r.PingRTT)
}
