package uart

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
)

// Direction is the direction of the bus buffer.
type Direction int

// Bus buffer directions.
const (
	Receive Direction = iota
	Transmit
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Transmit {
		return "tx"
	}
	return "rx"
}

// level returns the pin level selecting the direction:
// the buffer drives the wire when the pin is low.
func (d Direction) level() gpio.Level {
	if d == Transmit {
		return gpio.Low
	}
	return gpio.High
}

// BusBuffer owns the direction pin of the bus buffer on one physical bus.
// It is shared by every driver on that bus.
type BusBuffer struct {
	lock        sync.Mutex
	pin         gpio.PinOut
	initialized bool
	dir         Direction
}

// NewBusBuffer creates an uninitialized BusBuffer.
func NewBusBuffer() *BusBuffer {
	return &BusBuffer{}
}

// Init configures pin as the direction pin. Only the first call with a
// non-nil pin has effect. With a nil pin the buffer stays unconfigured and
// direction changes are skipped.
func (b *BusBuffer) Init(pin gpio.PinOut) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.initialized {
		return nil
	}
	if pin == nil {
		glog.Warning("bus buffer pin not configured, bus direction will not be switched")
		return nil
	}
	// Out also configures the pin as a digital output.
	if err := pin.Out(Receive.level()); err != nil {
		return fmt.Errorf("configure bus buffer pin %s: %w", pin, err)
	}
	b.pin, b.dir, b.initialized = pin, Receive, true
	glog.Infof("bus buffer pin %s initialized", pin)
	return nil
}

// Initialized tells if a direction pin is configured.
func (b *BusBuffer) Initialized() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.initialized
}

// Direction returns the current direction.
func (b *BusBuffer) Direction() Direction {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dir
}

// Set switches the buffer direction. It's a no-op without a pin.
func (b *BusBuffer) Set(dir Direction) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.initialized {
		return nil
	}
	if err := b.pin.Out(dir.level()); err != nil {
		return fmt.Errorf("switch bus buffer to %s: %w", dir, err)
	}
	b.dir = dir
	return nil
}
