// Package transport manages the persistent binary socket that carries the
// screen-share stream.
//
// A Connection moves through idle, connecting, open, closing and closed,
// with error reachable from any state when the socket fails:
//
//	conn := transport.NewConnection(transport.Config{})
//	conn.Connect("wss://host/stream", func(m transport.Message) {
//	    // m.Data is owned by the handler
//	})
//	defer conn.Disconnect()
//
// By default socket I/O runs on a worker goroutine. The connection sends
// the worker an init message carrying the url, then exchanges send and
// close commands for status and data messages over bounded channels.
// Buffers change owner when queued and are never shared. If the worker
// cannot be spawned, the connection reads and writes the socket directly.
//
// Messages that arrive after Disconnect, or from a socket that has since
// been replaced, are discarded. Reconnection is left to the caller.
package transport
