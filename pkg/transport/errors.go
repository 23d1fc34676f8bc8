package transport

import (
	"errors"
	"fmt"
)

var (
	ErrPortInUse  = errors.New("port already claimed by another session")
	ErrShortWrite = errors.New("short write")
	ErrClosed     = errors.New("transport is closed")
)

// TransportError wraps transport-level errors with the operation and device involved.
type TransportError struct {
	Err  error  // Underlying error
	Op   string // Operation that failed
	Port string // Device path or reader name
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewError wraps err for operation op on port. A nil err yields nil.
func NewError(op, port string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Port: port, Err: err}
}

// IsTransportError reports whether err carries a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
