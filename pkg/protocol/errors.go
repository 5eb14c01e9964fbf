package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTimeout          = errors.New("operation timed out")
	ErrTargetClosed     = errors.New("target closed")
	ErrObjectDisposed   = errors.New("object disposed")
)

// Remote error names the driver is known to report. Anything else falls
// through to the generic kind.
const (
	errNameTimeout      = "TimeoutError"
	errNameTargetClosed = "TargetClosedError"
)

// DriverError is a failure the driver reported in a response payload.
type DriverError struct {
	Name    string
	Message string
	Stack   string
}

func (e *DriverError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return e.Message
}

// Is maps the driver-reported name onto the package sentinels so callers can
// branch with errors.Is without inspecting the name themselves.
func (e *DriverError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Name == errNameTimeout
	case ErrTargetClosed:
		return e.Name == errNameTargetClosed
	}
	return false
}

// Classify turns a response error payload into a typed error.
func Classify(payload ErrorPayload) error {
	return &DriverError{
		Name:    payload.Name,
		Message: payload.Message,
		Stack:   payload.Stack,
	}
}

// ProtocolError is a malformed or semantically invalid message: an unknown
// parent, a stale correlation id, a missing initializer field. When scoped to
// one event it is logged and the event dropped; when scoped to one request it
// surfaces to the caller.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// NewProtocolError creates a ProtocolError with a formatted message.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// SerializationError means the call succeeded remotely but the result did not
// match the shape the caller expected. Distinct from DriverError: it signals
// a client/driver schema mismatch, not an application failure.
type SerializationError struct {
	Method string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("decode %s result: %v", e.Method, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the error is the driver's timeout kind.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTargetClosed reports whether the error indicates the remote target
// (page, context, browser) is already gone.
func IsTargetClosed(err error) bool {
	return errors.Is(err, ErrTargetClosed)
}

// IsRetryable reports whether the operation might succeed if retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout)
}
