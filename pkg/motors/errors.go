package motors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBus indicates the bus is not added to the Manager.
	ErrUnknownBus = errors.New("unknown bus")
	// ErrUnknownAxis indicates no driver is registered for the axis.
	ErrUnknownAxis = errors.New("unknown axis")
	// ErrBusKind indicates a bus is added again with a different wiring.
	ErrBusKind = errors.New("bus wiring mismatch")
)

// TestReason tells why a driver test failed.
type TestReason int

// Test failure reasons.
const (
	ReasonNoReply TestReason = iota
	ReasonWriteLost
	ReasonConnection
	ReasonMotorPower
)

var testReasonMessages = []string{
	"no reply, check connection",
	"write not received, check connection",
	"bad DRV_STATUS, check connection",
	"DRV_STATUS is zero, check motor power",
}

// String implements fmt.Stringer.
func (r TestReason) String() string {
	if r >= 0 && int(r) < len(testReasonMessages) {
		return testReasonMessages[r]
	}
	return fmt.Sprintf("reason %d", int(r))
}

// TestError is returned when a driver fails its connection test.
type TestError struct {
	Axis   string
	Reason TestReason
}

// Error implements error.
func (e *TestError) Error() string {
	return fmt.Sprintf("%s driver test failed: %s", e.Axis, e.Reason)
}

// VersionError is returned when IOIN reports an unexpected chip version.
type VersionError struct {
	Axis     string
	Expected uint32
	Actual   uint32
}

// Error implements error.
func (e *VersionError) Error() string {
	return fmt.Sprintf("%s driver version %#02x, expected %#02x", e.Axis, e.Actual, e.Expected)
}

// AxisError is returned when an axis conflicts with a registered one.
type AxisError struct {
	Axis   string
	Bus    string
	Reason string
}

// Error implements error.
func (e *AxisError) Error() string {
	return fmt.Sprintf("axis %s on bus %s: %s", e.Axis, e.Bus, e.Reason)
}
