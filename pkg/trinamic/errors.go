package trinamic

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroChecksum indicates a reply whose checksum computes to zero.
	// Such a frame is what a silent or disconnected bus looks like, so it is
	// never accepted even if the received checksum byte matches.
	ErrZeroChecksum = errors.New("zero checksum")
	// ErrBadLength indicates a datagram of unexpected size.
	ErrBadLength = errors.New("bad datagram length")
	// ErrBadSync indicates a datagram not starting with the sync byte.
	ErrBadSync = errors.New("bad sync byte")
)

// ChecksumError indicates a datagram failed checksum verification.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expect %02x, got %02x", e.Expected, e.Actual)
}

// RegisterMismatchError indicates a reply for a register other than requested.
type RegisterMismatchError struct {
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *RegisterMismatchError) Error() string {
	return fmt.Sprintf("reply for register %02x, expect %02x", e.Actual, e.Expected)
}
