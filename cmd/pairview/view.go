package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/pairview"
	"github.com/opd-ai/pairview/av"
	"github.com/opd-ai/pairview/av/protocol"
	"github.com/opd-ai/pairview/av/render"
	"github.com/opd-ai/pairview/transport"
)

type viewFlags struct {
	variant      string
	backend      string
	colorRange   string
	ioMode       string
	queueSize    int
	ringSize     int
	staleAfter   time.Duration
	window       int
	pingInterval time.Duration
	metricsAddr  string
}

func viewCmd() *cobra.Command {
	var f viewFlags

	cmd := &cobra.Command{
		Use:   "view <url>",
		Short: "Receive and draw a stream",
		Long: `Connect to a screen-share stream and draw it onto an off-screen surface.

The command exits when the stream closes or fails. It does not reconnect.

Examples:
  pairview view wss://pair.example.com/stream
  pairview view --backend shader --range full ws://localhost:8080/stream
  pairview view --metrics-addr :9090 --ping-interval 1s ws://localhost:8080/stream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runView(ctx, opts, f.metricsAddr)
		},
	}

	defaults := pairview.NewOptions()
	cmd.Flags().StringVar(&f.variant, "variant", "auto", "Wire variant (auto, tagged, untagged)")
	cmd.Flags().StringVar(&f.backend, "backend", "hardware", "Renderer backend (hardware, shader)")
	cmd.Flags().StringVar(&f.colorRange, "range", "limited", "YUV range (limited, full)")
	cmd.Flags().StringVar(&f.ioMode, "io", "worker", "Socket I/O mode (worker, direct)")
	cmd.Flags().IntVar(&f.queueSize, "queue-size", defaults.QueueSize, "Worker channel capacity")
	cmd.Flags().IntVar(&f.ringSize, "ring-size", defaults.RingSize, "In-flight frame slots")
	cmd.Flags().DurationVar(&f.staleAfter, "stale-after", defaults.StaleAfter, "Evict incomplete frames older than this")
	cmd.Flags().IntVar(&f.window, "window", defaults.MetricsWindow, "Frames per latency report")
	cmd.Flags().DurationVar(&f.pingInterval, "ping-interval", 0, "Ping interval (0 disables pings)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /status on this address")

	return cmd
}

// options converts flag values into session options.
func (f *viewFlags) options(url string) (*pairview.Options, error) {
	opts := pairview.NewOptions()
	opts.URL = url

	var err error
	if opts.Variant, err = protocol.ParseVariant(f.variant); err != nil {
		return nil, err
	}
	if opts.Backend, err = render.ParseBackend(f.backend); err != nil {
		return nil, err
	}
	if opts.ColorRange, err = render.ParseColorRange(f.colorRange); err != nil {
		return nil, err
	}
	if opts.IOMode, err = transport.ParseIOMode(f.ioMode); err != nil {
		return nil, err
	}
	opts.QueueSize = f.queueSize
	opts.RingSize = f.ringSize
	opts.StaleAfter = f.staleAfter
	opts.MetricsWindow = f.window
	opts.PingInterval = f.pingInterval

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func runView(ctx context.Context, opts *pairview.Options, metricsAddr string) error {
	session, err := pairview.NewSession(opts)
	if err != nil {
		return err
	}
	defer session.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	exporter := av.NewPrometheusExporter(
		av.WithRegistry(registry),
		av.WithConstLabels(prometheus.Labels{"backend": opts.Backend.String()}),
	)
	session.Latency().AddObserver(exporter)

	session.OnLatencyReport(func(r av.Report) {
		logrus.WithFields(logrus.Fields{
			"function":        "runView",
			"session_id":      session.ID().String(),
			"frames":          r.Frames,
			"capture_to_send": r.CaptureToSend,
			"network_ms":      r.Network,
			"receive_to_draw": r.ReceiveToDraw,
			"draw_ms":         r.Draw,
			"ping_rtt_ms":     r.PingRTT,
		}).Info("Latency window")
	})
	session.OnRemoteControl(func(enabled bool) {
		logrus.WithField("enabled", enabled).Info("Remote control toggled")
	})
	session.OnCursorVisibility(func(show bool) {
		logrus.WithField("show", show).Info("Custom cursor toggled")
	})

	ended := make(chan transport.Status, 1)
	session.OnConnectionStatus(func(s transport.Status) {
		if s == transport.StatusClosed || s == transport.StatusError {
			select {
			case ended <- s:
			default:
			}
		}
	})

	var srv *http.Server
	if metricsAddr != "" {
		srv = &http.Server{
			Addr:              metricsAddr,
			Handler:           newRouter(registry, session),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "runView",
					"addr":     metricsAddr,
					"error":    err.Error(),
				}).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := session.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logrus.WithField("session_id", session.ID().String()).Info("Interrupted, stopping")
		return nil
	case s := <-ended:
		st := session.Status()
		if s == transport.StatusError {
			return fmt.Errorf("stream failed: %s", st.LastError)
		}
		logrus.WithFields(logrus.Fields{
			"session_id":   session.ID().String(),
			"close":        st.CloseInfo.String(),
			"frames_drawn": st.FramesDrawn,
		}).Info("Stream closed")
		return nil
	}
}
