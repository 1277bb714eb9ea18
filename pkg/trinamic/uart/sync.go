package uart

import (
	"time"

	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// turnaroundBits is the number of bit times the wire needs after the last
// transmitted byte before the buffer may switch to receive.
const turnaroundBits = 40

// TurnaroundDelay returns the dead time after transmission at baud.
func TurnaroundDelay(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(1000000*turnaroundBits/baud) * time.Microsecond
}

// Synchronizer locates a reply header in a byte stream.
type Synchronizer struct {
	target uint32
	window uint32
}

// NewSynchronizer creates a Synchronizer waiting for the reply to a read
// of reg.
func NewSynchronizer(reg byte) *Synchronizer {
	return &Synchronizer{target: trinamic.SyncPattern(reg)}
}

// Feed shifts a received byte into the window and tells if the header
// has been found.
func (s *Synchronizer) Feed(b byte) bool {
	s.window = ((s.window << 8) | uint32(b)) & 0xffffff
	return s.window == s.target
}

// Window returns the last 3 received bytes.
func (s *Synchronizer) Window() uint32 {
	return s.window
}

// Target returns the header being searched for.
func (s *Synchronizer) Target() uint32 {
	return s.target
}

// Reset clears the window.
func (s *Synchronizer) Reset() {
	s.window = 0
}
