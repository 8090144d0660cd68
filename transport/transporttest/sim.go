// Package transporttest provides an in-memory simulated socket for testing
// code built on transport.Connection. It can drop messages according to a
// policy and records every delivery for later verification.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pairview/transport"
)

// ErrSocketClosed is returned by writes after the socket closed.
var ErrSocketClosed = errors.New("simulated socket closed")

// Direction tells which way a message travelled.
type Direction uint8

const (
	// Inbound messages flow from the simulated server to the client.
	Inbound Direction = iota
	// Outbound messages flow from the client to the simulated server.
	Outbound
)

// DeliveryRecord represents a message delivery event for test verification.
type DeliveryRecord struct {
	Direction Direction
	Seq       int
	Size      int
	Dropped   bool
	Timestamp time.Time
}

// DropPolicy decides whether the seq-th inbound message is lost.
type DropPolicy func(seq int, data []byte) bool

// DropSeq returns a policy that loses exactly the listed inbound messages.
func DropSeq(seqs ...int) DropPolicy {
	drop := make(map[int]bool, len(seqs))
	for _, s := range seqs {
		drop[s] = true
	}
	return func(seq int, _ []byte) bool { return drop[seq] }
}

// Config configures a SimulatedSocket.
type Config struct {
	// Drop is applied to inbound messages. Nil delivers everything.
	Drop DropPolicy
	// Echo delivers every client write back to the client.
	Echo bool
	// Buffer is the inbound queue capacity.
	Buffer int
}

// SimulatedSocket implements transport.Socket in memory.
type SimulatedSocket struct {
	cfg     Config
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu          sync.Mutex
	seq         int
	log         []DeliveryRecord
	sent        [][]byte
	peerClose   *websocket.CloseError
	clientClose *transport.CloseInfo
}

// NewSimulatedSocket creates an open simulated socket.
func NewSimulatedSocket(cfg Config) *SimulatedSocket {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &SimulatedSocket{
		cfg:     cfg,
		inbound: make(chan []byte, cfg.Buffer),
		closed:  make(chan struct{}),
	}
}

// Deliver pushes a server message to the client, subject to the drop
// policy. It reports whether the message was queued.
func (s *SimulatedSocket) Deliver(data []byte) bool {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	dropped := s.cfg.Drop != nil && s.cfg.Drop(seq, data)
	s.log = append(s.log, DeliveryRecord{
		Direction: Inbound,
		Seq:       seq,
		Size:      len(data),
		Dropped:   dropped,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	if dropped {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "SimulatedSocket.Deliver",
				"seq":      seq,
				"size":     len(data),
			}).Debug("Simulated loss")
		}
		return false
	}

	select {
	case s.inbound <- data:
		return true
	case <-s.closed:
		return false
	}
}

// DeliverAll delivers each message in order.
func (s *SimulatedSocket) DeliverAll(messages [][]byte) {
	for _, m := range messages {
		s.Deliver(m)
	}
}

// ReadMessage implements transport.Socket.
func (s *SimulatedSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	case <-s.closed:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.peerClose != nil {
			return nil, s.peerClose
		}
		return nil, ErrSocketClosed
	}
}

// WriteMessage implements transport.Socket.
func (s *SimulatedSocket) WriteMessage(data []byte) error {
	select {
	case <-s.closed:
		return ErrSocketClosed
	default:
	}

	s.mu.Lock()
	s.sent = append(s.sent, data)
	s.log = append(s.log, DeliveryRecord{
		Direction: Outbound,
		Seq:       len(s.sent) - 1,
		Size:      len(data),
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	if s.cfg.Echo {
		s.Deliver(append([]byte(nil), data...))
	}
	return nil
}

// Close implements transport.Socket.
func (s *SimulatedSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.clientClose == nil && s.peerClose == nil {
		s.clientClose = &transport.CloseInfo{Code: code, Reason: reason}
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

// CloseFromPeer simulates the server closing with a close frame.
func (s *SimulatedSocket) CloseFromPeer(code int, reason string) {
	s.mu.Lock()
	if s.clientClose == nil && s.peerClose == nil {
		s.peerClose = &websocket.CloseError{Code: code, Text: reason}
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
}

// Closed reports whether either side closed the socket.
func (s *SimulatedSocket) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// ClientClose returns the close frame sent by the client, if any.
func (s *SimulatedSocket) ClientClose() (transport.CloseInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientClose == nil {
		return transport.CloseInfo{}, false
	}
	return *s.clientClose, true
}

// Sent returns the messages written by the client.
func (s *SimulatedSocket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Log returns every delivery recorded so far.
func (s *SimulatedSocket) Log() []DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeliveryRecord(nil), s.log...)
}

// Dropped returns the number of inbound messages lost by the drop policy.
func (s *SimulatedSocket) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.log {
		if r.Dropped {
			n++
		}
	}
	return n
}

// Dialer hands out a fixed socket and counts dials.
type Dialer struct {
	// Socket is returned by every successful dial.
	Socket *SimulatedSocket
	// Err, if set, fails every dial.
	Err error

	dials atomic.Int32
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Socket, error) {
	d.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Socket, nil
}

// Dials returns the number of Dial calls.
func (d *Dialer) Dials() int {
	return int(d.dials.Load())
}
