package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pairview/limits"
)

// closeGrace bounds how long a close frame may take to write.
const closeGrace = time.Second

// Socket is a message-oriented binary socket.
//
// ReadMessage may be called from one goroutine while WriteMessage is called
// from another. Close may be called from any goroutine.
type Socket interface {
	// ReadMessage blocks until the next binary message arrives. The returned
	// slice is owned by the caller.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one binary message.
	WriteMessage(data []byte) error
	// Close sends a close frame with the given code and reason and releases
	// the socket.
	Close(code int, reason string) error
}

// Dialer establishes sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Socket, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Socket, error) {
	return f(ctx, url)
}

// WebSocketDialer dials binary WebSockets with gorilla/websocket.
type WebSocketDialer struct {
	// Dialer is the underlying dialer. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the opening handshake.
	Header http.Header
}

// Dial opens a WebSocket to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		logrus.WithFields(logrus.Fields{
			"function":    "WebSocketDialer.Dial",
			"url":         url,
			"http_status": status,
			"error":       err.Error(),
		}).Debug("WebSocket handshake failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, url, err)
	}
	conn.SetReadLimit(limits.MaxPacketSize)
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
		logrus.WithFields(logrus.Fields{
			"function": "wsSocket.ReadMessage",
			"type":     kind,
			"size":     len(data),
		}).Debug("Ignoring non-binary message")
	}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *wsSocket) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return s.conn.Close()
}
