package live

import (
	"errors"
	"fmt"
)

// Sentinel errors for the live package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("live: API key is required")

	// ErrStreamClosed is returned after Close.
	ErrStreamClosed = errors.New("live: stream closed")

	// ErrBackendNotSupported indicates no backend is registered under a name.
	ErrBackendNotSupported = errors.New("live: backend not supported")

	// ErrInvalidMessage indicates a malformed server message.
	ErrInvalidMessage = errors.New("live: invalid message")
)

// ConnectionError wraps a failure to open or keep a stream.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// APIError is an error reported by the endpoint itself, such as an
// authentication rejection or a close frame with a reason.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("live: API error %d: %s", e.Code, e.Message)
	}
	return "live: API error: " + e.Message
}

// IsConnectionError reports whether err came from the transport.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
