package pairview

import (
	"github.com/opd-ai/pairview/av"
	"github.com/opd-ai/pairview/av/video"
	"github.com/opd-ai/pairview/transport"
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	SessionID    string              `json:"session_id"`
	URL          string              `json:"url"`
	Connection   transport.Status    `json:"connection"`
	IOMode       string              `json:"io_mode"`
	CloseInfo    transport.CloseInfo `json:"close_info"`
	LastError    string              `json:"last_error,omitempty"`
	Backend      string              `json:"backend"`
	Variant      string              `json:"variant"`
	Reassembly   video.Stats         `json:"reassembly"`
	Dropped      uint64              `json:"packets_dropped"`
	FramesDrawn  uint64              `json:"frames_drawn"`
	DrawErrors   uint64              `json:"draw_errors"`
	PingsSent    uint64              `json:"pings_sent"`
	Participants int                 `json:"participants"`
	Latency      av.Sums             `json:"latency_window"`
	LastReport   *av.Report          `json:"last_report,omitempty"`
}

// Status returns a snapshot of the connection, reassembly counters and
// latency state.
func (s *Session) Status() Status {
	url := s.conn.URL()
	if url == "" {
		url = s.options.URL
	}
	st := Status{
		SessionID:    s.id.String(),
		URL:          url,
		Connection:   s.conn.Status(),
		IOMode:       s.conn.Mode().String(),
		CloseInfo:    s.conn.CloseInfo(),
		LastError:    s.conn.LastError(),
		Backend:      s.renderer.Backend().String(),
		Variant:      s.decoder.Variant().String(),
		Participants: s.participants.Len(),
		Latency:      s.latency.Snapshot(),
	}
	if report, ok := s.latency.LastReport(); ok {
		st.LastReport = &report
	}

	s.pipelineMu.Lock()
	st.Reassembly = s.reassembler.Stats()
	st.Dropped = s.packetsDropped
	st.FramesDrawn = s.framesDrawn
	st.DrawErrors = s.drawErrors
	st.PingsSent = s.pingsSent
	s.pipelineMu.Unlock()

	return st
}
