// Package sim provides an in-memory single-wire TMC UART bus.
package sim

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/tmcbus/pkg/hal"
	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// DefaultLatency is the time a device waits before replying (SENDDELAY of
// 8 bit times at 115200 baud, rounded up).
const DefaultLatency = 100 * time.Microsecond

// Bus simulates a half-duplex single-wire bus with TMC2209 devices attached.
// It implements hal.Port from the master's point of view.
type Bus struct {
	Clock    hal.Clock
	BaudRate int
	// Echo makes the master receive its own transmitted bytes.
	Echo bool
	// Latency is the delay between a read request and its reply.
	Latency time.Duration
	// DirPin is the bus buffer direction pin. When set, bytes written while
	// the pin is not driving the bus (high) never reach the wire.
	DirPin gpio.PinIn

	lock       sync.Mutex
	devices    map[byte]*Device
	parser     frameParser
	rx         []pendingByte
	written    []byte
	collisions int
}

type pendingByte struct {
	b  byte
	at time.Time
}

// NewBus creates a Bus with echo enabled.
func NewBus(clock hal.Clock) *Bus {
	if clock == nil {
		clock = hal.SystemClock
	}
	return &Bus{
		Clock:    clock,
		BaudRate: hal.DefaultBaud,
		Echo:     true,
		Latency:  DefaultLatency,
		devices:  make(map[byte]*Device),
	}
}

// Attach connects devices to the bus.
func (b *Bus) Attach(devs ...*Device) *Bus {
	b.lock.Lock()
	for _, dev := range devs {
		b.devices[dev.Address] = dev
	}
	b.lock.Unlock()
	return b
}

// Device returns the device at addr.
func (b *Bus) Device(addr byte) *Device {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.devices[addr]
}

// Baud implements hal.Port.
func (b *Bus) Baud() int {
	return b.BaudRate
}

func (b *Bus) byteTime() time.Duration {
	return 10 * time.Second / time.Duration(b.BaudRate)
}

// Write implements hal.Port.
func (b *Bus) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.written = append(b.written, p...)
	if b.DirPin != nil && b.DirPin.Read() == gpio.High {
		b.collisions++
		glog.V(4).Infof("sim: %d bytes written while bus buffer receiving", len(p))
		return len(p), nil
	}
	at, bt := b.Clock.Now(), b.byteTime()
	for _, c := range p {
		at = at.Add(bt)
		if b.Echo {
			b.rx = append(b.rx, pendingByte{b: c, at: at})
		}
		if frame := b.parser.parse(c); frame != nil {
			at = b.dispatch(frame, at)
		}
	}
	return len(p), nil
}

func (b *Bus) dispatch(frame trinamic.Datagram, at time.Time) time.Time {
	dev := b.devices[frame.Address()]
	if dev == nil {
		return at
	}
	if frame.IsWrite() {
		_, reg, val, err := trinamic.DecodeWrite(frame)
		if err == nil {
			dev.write(reg, val)
		}
		return at
	}
	bt := b.byteTime()
	at = at.Add(b.Latency)
	for _, c := range dev.reply(frame.Register()) {
		at = at.Add(bt)
		b.rx = append(b.rx, pendingByte{b: c, at: at})
	}
	return at
}

// TryReadByte implements hal.Port.
func (b *Bus) TryReadByte() (byte, bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.rx) == 0 {
		return 0, false, nil
	}
	if b.Clock.Now().Before(b.rx[0].at) {
		return 0, false, nil
	}
	c := b.rx[0].b
	b.rx = b.rx[1:]
	return c, true, nil
}

// Inject puts bytes on the wire as if sent by an unknown party.
func (b *Bus) Inject(p ...byte) {
	b.lock.Lock()
	now := b.Clock.Now()
	for _, c := range p {
		b.rx = append(b.rx, pendingByte{b: c, at: now})
	}
	b.lock.Unlock()
}

// Written returns all bytes the master has written.
func (b *Bus) Written() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]byte{}, b.written...)
}

// Collisions returns the number of writes lost due to wrong bus direction.
func (b *Bus) Collisions() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.collisions
}

// Pending returns the number of bytes not yet read by the master.
func (b *Bus) Pending() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.rx)
}

// frameParser reassembles request datagrams on the device side.
type frameParser struct {
	buf []byte
}

func (p *frameParser) parse(c byte) trinamic.Datagram {
	if len(p.buf) == 0 && c != trinamic.Sync {
		return nil
	}
	p.buf = append(p.buf, c)
	if len(p.buf) < 3 {
		return nil
	}
	size := trinamic.ReadRequestLen
	if p.buf[2]&trinamic.WriteFlag != 0 {
		size = trinamic.WriteLen
	}
	if len(p.buf) < size {
		return nil
	}
	frame := trinamic.Datagram(p.buf)
	p.buf = nil
	if err := frame.Verify(); err != nil {
		glog.V(4).Infof("sim: drop frame % x: %v", []byte(frame), err)
		return nil
	}
	return frame
}
