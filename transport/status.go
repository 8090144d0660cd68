package transport

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Status is the lifecycle state of a Connection.
type Status uint8

const (
	// StatusIdle means no socket has been requested yet.
	StatusIdle Status = iota
	// StatusConnecting means a socket is being established.
	StatusConnecting
	// StatusOpen means the socket is established and data flows.
	StatusOpen
	// StatusClosing means a disconnect was requested.
	StatusClosing
	// StatusClosed means the socket closed; see CloseInfo.
	StatusClosed
	// StatusError means the socket failed; see LastError.
	StatusError
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Active reports whether the status is connecting or open.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusOpen
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CloseInfo is the close code and reason of the last socket closure.
type CloseInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// String returns a string representation of the close info.
func (c CloseInfo) String() string {
	if c.Reason == "" {
		return fmt.Sprintf("%d", c.Code)
	}
	return fmt.Sprintf("%d (%s)", c.Code, c.Reason)
}

// closeInfoFromError extracts the close frame carried by a read error. It
// reports false for errors that are not orderly closures.
func closeInfoFromError(err error) (CloseInfo, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseAbnormalClosure {
			return CloseInfo{}, false
		}
		return CloseInfo{Code: ce.Code, Reason: ce.Text}, true
	}
	return CloseInfo{}, false
}
