// Package hal abstracts the hardware the UART engine runs on.
package hal

import (
	"io"
	"time"
)

// Port is a UART channel.
type Port interface {
	io.Writer
	// TryReadByte returns the next received byte without blocking.
	// ok is false when nothing is pending.
	TryReadByte() (b byte, ok bool, err error)
	// Baud returns the configured baud rate.
	Baud() int
}

// Clock provides monotonic time and delays.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

// spinThreshold is the delay below which Sleep busy-waits, as the OS
// scheduler can't wake a goroutine with microsecond accuracy.
const spinThreshold = time.Millisecond

type systemClock struct{}

// SystemClock is the Clock of the host.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}
	for deadline := time.Now().Add(d); time.Now().Before(deadline); {
	}
}

// Drain discards all pending bytes on the port, reading at most max bytes.
// It returns the number of bytes discarded.
func Drain(p Port, max int) (n int, err error) {
	for n < max {
		_, ok, err := p.TryReadByte()
		if err != nil || !ok {
			return n, err
		}
		n++
	}
	return n, nil
}
