package order

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a lookup that failed even after the retry budget.
var ErrNotFound = errors.New("order not found")

// ErrConflict marks an optimistic-concurrency failure: the order changed
// between read and write.
var ErrConflict = errors.New("order version conflict")

// ValidationError rejects a malformed creation request. It is terminal for
// the request and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TransportError wraps a broker or serialization failure. It is fatal for the
// single message or publish in question; redelivery is the transport's job.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
