package uart

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReply indicates the reply header never showed up.
	ErrNoReply = errors.New("no reply")
	// ErrIncompleteFrame indicates the reply stopped after the header.
	ErrIncompleteFrame = errors.New("incomplete frame")
)

// RetryError is returned when every attempt of a read failed.
type RetryError struct {
	Reg      byte
	Attempts int
	Last     error
}

// Error implements error.
func (e *RetryError) Error() string {
	return fmt.Sprintf("read register %02x failed after %d attempts: %v", e.Reg, e.Attempts, e.Last)
}

// Unwrap returns the failure of the last attempt.
func (e *RetryError) Unwrap() error {
	return e.Last
}
