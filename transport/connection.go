package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the default capacity of each worker channel.
const DefaultQueueSize = 256

// Message is one binary message received from the socket. Data is owned by
// the handler.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// Handler receives socket messages. Handlers for one connection are never
// called concurrently.
type Handler func(Message)

// StatusHandler observes status transitions.
type StatusHandler func(status Status)

// Config configures a Connection.
type Config struct {
	// Dialer establishes sockets. Nil uses a WebSocketDialer.
	Dialer Dialer
	// Mode is the preferred I/O mode. IOWorker falls back to IODirect when
	// the spawner fails.
	Mode IOMode
	// Spawner starts the I/O worker. Nil uses GoSpawner.
	Spawner Spawner
	// QueueSize is the capacity of each worker channel.
	QueueSize int
	// Now stamps received messages. Nil uses time.Now.
	Now func() time.Time
}

// Connection manages one persistent binary socket.
//
// There is no automatic reconnection: after a closure or failure the
// caller decides whether to Connect again.
type Connection struct {
	cfg Config

	mu        sync.Mutex
	url       string
	status    Status
	mode      IOMode
	closeInfo CloseInfo
	lastError string
	handler   Handler
	listeners []StatusHandler
	gen       uint64
	link      link

	// deliverMu serializes handler calls.
	deliverMu sync.Mutex
}

// NewConnection creates an idle connection.
func NewConnection(cfg Config) *Connection {
	if cfg.Dialer == nil {
		cfg.Dialer = &WebSocketDialer{}
	}
	if cfg.Spawner == nil {
		cfg.Spawner = GoSpawner{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Connection{cfg: cfg, mode: cfg.Mode}
}

// Connect opens a socket to url and delivers its messages to onMessage.
// Calling it again with the same url while connecting or open is a no-op;
// a different url replaces the current socket.
func (c *Connection) Connect(url string, onMessage Handler) error {
	if url == "" {
		return ErrInvalidURL
	}

	c.mu.Lock()
	if c.url == url && c.status.Active() {
		status := c.status
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Connection.Connect",
			"url":      url,
			"status":   status.String(),
		}).Debug("Connect ignored, already active")
		return nil
	}
	previous := c.link
	c.link = nil

	c.gen++
	gen := c.gen
	c.url = url
	c.handler = onMessage
	c.closeInfo = CloseInfo{}
	c.lastError = ""
	c.status = StatusConnecting
	c.mode = c.cfg.Mode
	listeners := c.listeners
	c.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	notify(listeners, StatusConnecting)
	c.start(gen, url)
	return nil
}

// start launches the I/O path for generation gen, preferring a worker.
func (c *Connection) start(gen uint64, url string) {
	mode := c.cfg.Mode
	var l link
	if mode == IOWorker {
		w := newWorker(c.cfg.Dialer, c.cfg.Now, c.cfg.QueueSize)
		w.in <- message{kind: msgInit, url: url}
		if err := c.cfg.Spawner.Spawn(w.run); err != nil {
			w.cancel()
			logrus.WithFields(logrus.Fields{
				"function": "Connection.start",
				"url":      url,
				"error":    err.Error(),
			}).Warn("Worker unavailable, falling back to direct I/O")
			mode = IODirect
		} else {
			l = w
			go c.pump(gen, w)
		}
	}
	var d *direct
	if mode == IODirect {
		d = newDirect()
		l = d
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		l.close()
		return
	}
	c.mode = mode
	c.link = l
	c.mu.Unlock()

	if d != nil {
		go d.run(c.cfg.Dialer, url, c.cfg.Now, func(m message) { c.apply(gen, m) })
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connection.start",
		"url":      url,
		"mode":     mode.String(),
	}).Info("Connecting")
}

// pump applies worker messages on behalf of generation gen.
func (c *Connection) pump(gen uint64, w *worker) {
	for {
		select {
		case m := <-w.out:
			c.apply(gen, m)
		case <-w.ctx.Done():
			return
		}
	}
}

// apply handles a message from the I/O path of generation gen. Messages
// from superseded generations are discarded, and so is data that arrives
// while the connection is not open.
func (c *Connection) apply(gen uint64, m message) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	switch m.kind {
	case msgData:
		if c.status != StatusOpen {
			c.mu.Unlock()
			return
		}
		handler := c.handler
		c.mu.Unlock()
		if handler == nil {
			return
		}

		c.deliverMu.Lock()
		defer c.deliverMu.Unlock()
		// Disconnect or Connect may have run while waiting for deliverMu.
		if !c.delivering(gen) {
			return
		}
		handler(Message{Data: m.data, ReceivedAt: m.receivedAt})
		return

	case msgStatus:
		if c.status == m.status {
			c.mu.Unlock()
			return
		}
		c.status = m.status
		if m.status == StatusClosed {
			c.closeInfo = m.closeInfo
		}
		if m.err != nil {
			c.lastError = m.err.Error()
		}
		var ended link
		if m.status == StatusClosed || m.status == StatusError {
			ended, c.link = c.link, nil
		}
		url := c.url
		listeners := c.listeners
		c.mu.Unlock()

		if ended != nil {
			ended.close()
		}

		fields := logrus.Fields{
			"function": "Connection.apply",
			"url":      url,
			"status":   m.status.String(),
		}
		switch m.status {
		case StatusError:
			fields["error"] = m.err.Error()
			logrus.WithFields(fields).Error("Socket failed")
		case StatusClosed:
			fields["close_code"] = m.closeInfo.Code
			fields["close_reason"] = m.closeInfo.Reason
			logrus.WithFields(fields).Info("Socket closed by peer")
		default:
			logrus.WithFields(fields).Info("Socket status changed")
		}
		notify(listeners, m.status)
		return
	}
	c.mu.Unlock()
}

func (c *Connection) delivering(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.status == StatusOpen
}

// Send transmits data if the connection is open. It returns false without
// sending otherwise. On success, ownership of data passes to the
// connection and the caller must not modify it.
func (c *Connection) Send(data []byte) bool {
	c.mu.Lock()
	if c.status != StatusOpen || c.link == nil {
		c.mu.Unlock()
		return false
	}
	l := c.link
	c.mu.Unlock()

	if err := l.send(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Connection.Send",
			"size":     len(data),
			"error":    err.Error(),
		}).Warn("Send failed")
		return false
	}
	return true
}

// Disconnect closes the socket if connecting or open; otherwise it is a
// no-op. Messages already in flight are discarded.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if !c.status.Active() {
		c.mu.Unlock()
		return
	}
	c.status = StatusClosing
	c.gen++
	l := c.link
	c.link = nil
	listeners := c.listeners
	c.mu.Unlock()
	notify(listeners, StatusClosing)

	if l != nil {
		l.close()
	}

	c.mu.Lock()
	c.status = StatusClosed
	c.closeInfo = CloseInfo{Code: websocket.CloseNormalClosure, Reason: "client disconnect"}
	url := c.url
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Connection.Disconnect",
		"url":      url,
	}).Info("Disconnected")
	notify(listeners, StatusClosed)
}

// OnStatus registers a handler for status transitions. Handlers run
// synchronously on the goroutine that caused the transition.
func (c *Connection) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, h)
}

// Status returns the current status.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// URL returns the url of the last Connect.
func (c *Connection) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Mode returns the I/O mode in use, which is IODirect after a worker
// fallback.
func (c *Connection) Mode() IOMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// CloseInfo returns the close code and reason of the last closure.
func (c *Connection) CloseInfo() CloseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeInfo
}

// LastError returns the message of the last socket failure, or "".
func (c *Connection) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// String returns a string representation of the connection.
func (c *Connection) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Connection{url=%s status=%s mode=%s}", c.url, c.status, c.mode)
}

func notify(listeners []StatusHandler, status Status) {
	for _, h := range listeners {
		h(status)
	}
}
