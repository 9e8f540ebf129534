package tcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies network failures. The set is closed; callbacks and
// events always carry one of these.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrConnectionFailed
	ErrConnectionClosed
	ErrConnectionTimeout
	ErrBindFailed
	ErrListenFailed
	ErrAcceptFailed
	ErrSendFailed
	ErrReceiveFailed
	ErrInvalidSocket
	ErrAddressResolutionFailed
	ErrUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrConnectionFailed:
		return "connection_failed"
	case ErrConnectionClosed:
		return "connection_closed"
	case ErrConnectionTimeout:
		return "connection_timeout"
	case ErrBindFailed:
		return "bind_failed"
	case ErrListenFailed:
		return "listen_failed"
	case ErrAcceptFailed:
		return "accept_failed"
	case ErrSendFailed:
		return "send_failed"
	case ErrReceiveFailed:
		return "receive_failed"
	case ErrInvalidSocket:
		return "invalid_socket"
	case ErrAddressResolutionFailed:
		return "address_resolution_failed"
	default:
		return "unknown"
	}
}

// NetError wraps an underlying error with its classification.
type NetError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *NetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *NetError) Unwrap() error { return e.Err }

func netErr(kind ErrorKind, msg string, err error) *NetError {
	return &NetError{Kind: kind, Msg: msg, Err: err}
}

var (
	// ErrNotConnected is returned by Send when the connection is not in the
	// Connected state.
	ErrNotConnected = errors.New("tcp: not connected")

	// ErrAlreadyRunning is returned by Server.Start when the server is
	// already running.
	ErrAlreadyRunning = errors.New("tcp: server already running")

	// ErrAlreadyConnected is returned by Connect when the connection is not
	// in the Disconnected state.
	ErrAlreadyConnected = errors.New("tcp: connection not in disconnected state")
)
