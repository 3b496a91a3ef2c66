package predict

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a prediction call failure so callers can apply
// differentiated degraded-mode policy.
type ErrorKind string

const (
	ErrNetwork         ErrorKind = "NETWORK_ERROR"
	ErrTimeout         ErrorKind = "TIMEOUT"
	ErrUnavailable     ErrorKind = "SERVICE_UNAVAILABLE"
	ErrInvalidResponse ErrorKind = "INVALID_RESPONSE"
)

// Error is the typed failure returned by the prediction client. It never
// carries a fabricated probability.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prediction %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("prediction %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the error kind, or empty if err is not a prediction error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
