package protocol

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Handler.Send while the device has not finished
// its initialization handshake. It is a recoverable condition: callers are
// expected to queue the send and replay it once the handler reports Ready.
var ErrNotReady = errors.New("device is not ready")

// ErrDuplicatePath is returned when a second endpoint is registered on a
// transport path that already has a live endpoint.
var ErrDuplicatePath = errors.New("transport path already registered")

// ConnectionError is a connect-time failure. The endpoint that failed to
// connect must not remain registered.
type ConnectionError struct {
	Family string
	Path   string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s endpoint on %q: %v", e.Family, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError is a send-time failure other than ErrNotReady. It is
// recorded against the endpoint's error counter and never aborts a fan-out.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %q: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
