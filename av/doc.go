// Package av holds the latency accounting for a screen-share stream.
//
// Every drawn frame yields a FrameTiming with four instants: capture, send,
// arrival and draw completion. The LatencyAggregator turns each timing into
// a FrameSample, accumulates samples over a fixed window of frames and emits
// a Report with the per-stage averages when the window fills. Echoed pings
// contribute round-trip samples to the same window.
//
// # Sub-Packages
//
//   - av/protocol: wire decoding for both packet variants
//   - av/video: chunked frame reassembly
//   - av/render: YUV 4:2:0 presentation onto a surface
//
// # Usage
//
//	aggregator := av.NewLatencyAggregator(av.DefaultWindowSize)
//	aggregator.AddObserver(av.NewPrometheusExporter())
//	aggregator.OnReport(func(r av.Report) {
//	    log.Printf("network %.1fms", r.Network)
//	})
//
// Samples are forwarded to every Observer as they arrive. The
// PrometheusExporter observer publishes them as histograms and gauges.
//
// # Thread Safety
//
// LatencyAggregator is safe for concurrent use. Callbacks and observers run
// outside its lock.
package av
