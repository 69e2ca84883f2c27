package electrum

import (
	"errors"
	"fmt"

	"btctrack/pkg/models"
)

var (
	// ErrClosed is returned for calls made after Close.
	ErrClosed = errors.New("connection closed by caller")
)

// ConnectError reports a TCP or TLS failure while establishing a
// connection. Certificate validation failures surface here and are
// never silently downgraded to plaintext.
type ConnectError struct {
	Endpoint models.Endpoint
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports that no response arrived within the per-call
// bound. The connection is unusable afterwards and must be discarded.
type TimeoutError struct {
	Endpoint models.Endpoint
	Method   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s timed out", e.Endpoint, e.Method)
}

// ProtocolError reports a malformed or unexpected response. The
// connection is discarded because framing can no longer be trusted.
type ProtocolError struct {
	Endpoint models.Endpoint
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Endpoint, e.Reason)
}

// ConnectionClosedError reports that the remote side closed the
// connection while calls were outstanding.
type ConnectionClosedError struct {
	Endpoint models.Endpoint
	Err      error
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("%s: connection closed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionClosedError) Unwrap() error { return e.Err }

// RPCError is a structured error object returned by the server for a
// single request. It does not invalidate the connection.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
