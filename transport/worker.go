package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// IOMode selects where socket I/O runs.
type IOMode uint8

const (
	// IOWorker runs the socket on a dedicated goroutine that exchanges
	// messages with the connection over bounded channels.
	IOWorker IOMode = iota
	// IODirect reads and writes the socket without a worker queue.
	IODirect
)

// String returns a string representation of the I/O mode.
func (m IOMode) String() string {
	if m == IODirect {
		return "direct"
	}
	return "worker"
}

// ParseIOMode converts a configuration string to an IOMode.
func ParseIOMode(s string) (IOMode, error) {
	switch s {
	case "worker", "":
		return IOWorker, nil
	case "direct":
		return IODirect, nil
	default:
		return IOWorker, fmt.Errorf("unknown I/O mode %q", s)
	}
}

// Spawner starts the I/O worker. A non-nil error means no worker was
// started and the connection falls back to direct I/O.
type Spawner interface {
	Spawn(run func()) error
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(run func()) error

// Spawn calls f(run).
func (f SpawnerFunc) Spawn(run func()) error {
	return f(run)
}

// GoSpawner runs the worker on a new goroutine.
type GoSpawner struct{}

// Spawn starts run on a new goroutine.
func (GoSpawner) Spawn(run func()) error {
	go run()
	return nil
}

type msgKind uint8

const (
	msgInit msgKind = iota
	msgSend
	msgClose
	msgStatus
	msgData
)

// message is exchanged between a connection and its I/O path. A data
// buffer belongs to exactly one side: the sender must not touch it after
// the message is queued.
type message struct {
	kind       msgKind
	url        string
	data       []byte
	receivedAt time.Time
	status     Status
	closeInfo  CloseInfo
	err        error
}

// link is the active I/O path of one connection generation.
type link interface {
	send(data []byte) error
	close()
}

// statusFromReadError maps a terminal read error to a status message.
func statusFromReadError(err error) message {
	if info, ok := closeInfoFromError(err); ok {
		return message{kind: msgStatus, status: StatusClosed, closeInfo: info}
	}
	return message{kind: msgStatus, status: StatusError, err: err}
}

// worker owns the socket on its own goroutine. Commands arrive on in;
// status changes and data leave on out.
type worker struct {
	dialer Dialer
	now    func() time.Time
	in     chan message
	out    chan message
	ctx    context.Context
	cancel context.CancelFunc
}

func newWorker(dialer Dialer, now func() time.Time, queueSize int) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		dialer: dialer,
		now:    now,
		in:     make(chan message, queueSize),
		out:    make(chan message, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// send queues data for the worker. Ownership of data moves to the worker.
func (w *worker) send(data []byte) error {
	select {
	case w.in <- message{kind: msgSend, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// close asks the worker to close the socket, then terminates it.
func (w *worker) close() {
	select {
	case w.in <- message{kind: msgClose}:
	default:
	}
	w.cancel()
}

func (w *worker) emit(m message) bool {
	select {
	case w.out <- m:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// run is the worker goroutine.
func (w *worker) run() {
	var init message
	select {
	case init = <-w.in:
	case <-w.ctx.Done():
		return
	}

	sock, err := w.dialer.Dial(w.ctx, init.url)
	if err != nil {
		w.emit(message{kind: msgStatus, status: StatusError, err: err})
		return
	}
	if !w.emit(message{kind: msgStatus, status: StatusOpen}) {
		sock.Close(websocket.CloseNormalClosure, "")
		return
	}

	readErr := make(chan error, 1)
	go w.readLoop(sock, readErr)

	for {
		select {
		case m := <-w.in:
			switch m.kind {
			case msgSend:
				if err := sock.WriteMessage(m.data); err != nil {
					sock.Close(websocket.CloseInternalServerErr, "")
					w.emit(message{kind: msgStatus, status: StatusError, err: err})
					return
				}
			case msgClose:
				sock.Close(websocket.CloseNormalClosure, "")
				return
			}
		case err := <-readErr:
			sock.Close(websocket.CloseNormalClosure, "")
			w.emit(statusFromReadError(err))
			return
		case <-w.ctx.Done():
			sock.Close(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (w *worker) readLoop(sock Socket, readErr chan<- error) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		if !w.emit(message{kind: msgData, data: data, receivedAt: w.now()}) {
			return
		}
	}
}

// direct runs the socket without a worker: reads are delivered from the
// read goroutine and writes happen on the caller's goroutine.
type direct struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sock Socket
}

func newDirect() *direct {
	ctx, cancel := context.WithCancel(context.Background())
	return &direct{ctx: ctx, cancel: cancel}
}

// attach installs the dialed socket. It reports false if the link was
// closed while dialing, in which case the socket is closed.
func (d *direct) attach(sock Socket) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		sock.Close(websocket.CloseNormalClosure, "")
		return false
	}
	d.sock = sock
	return true
}

func (d *direct) send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sock == nil {
		return ErrNotOpen
	}
	return d.sock.WriteMessage(data)
}

func (d *direct) close() {
	d.cancel()
	d.mu.Lock()
	sock := d.sock
	d.mu.Unlock()
	if sock != nil {
		sock.Close(websocket.CloseNormalClosure, "")
	}
}

// run dials and reads until the socket fails or the link is closed,
// delivering every event to deliver.
func (d *direct) run(dialer Dialer, url string, now func() time.Time, deliver func(message)) {
	sock, err := dialer.Dial(d.ctx, url)
	if err != nil {
		deliver(message{kind: msgStatus, status: StatusError, err: err})
		return
	}
	if !d.attach(sock) {
		return
	}
	deliver(message{kind: msgStatus, status: StatusOpen})

	for {
		data, err := sock.ReadMessage()
		if err != nil {
			if d.ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "direct.run",
					"url":      url,
					"error":    err.Error(),
				}).Debug("Socket read ended")
			}
			deliver(statusFromReadError(err))
			return
		}
		deliver(message{kind: msgData, data: data, receivedAt: now()})
	}
}
