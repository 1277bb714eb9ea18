package uart

import (
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/tmcbus/pkg/hal"
	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// Defaults
const (
	DefaultReplyDelay  = 2 * time.Millisecond
	DefaultAbortWindow = 5 * time.Millisecond
	DefaultMaxRetries  = 2
)

// maxFlush bounds the bytes discarded by one flush, so a babbling line
// can't stall the caller forever.
const maxFlush = 1024

// Config defines the timing of transactions.
type Config struct {
	// ReplyDelay is the time given to the driver to process a datagram.
	ReplyDelay time.Duration
	// AbortWindow bounds both the reply header scan and the payload capture.
	AbortWindow time.Duration
	// MaxRetries is the number of attempts of a read.
	MaxRetries int
	// Clock defaults to hal.SystemClock.
	Clock hal.Clock
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ReplyDelay:  DefaultReplyDelay,
		AbortWindow: DefaultAbortWindow,
		MaxRetries:  DefaultMaxRetries,
		Clock:       hal.SystemClock,
	}
}

func (c Config) withDefaults() Config {
	if c.AbortWindow <= 0 {
		c.AbortWindow = DefaultAbortWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.ReplyDelay < 0 {
		c.ReplyDelay = 0
	}
	if c.Clock == nil {
		c.Clock = hal.SystemClock
	}
	return c
}

// Transceiver moves datagrams over a bus.
type Transceiver interface {
	// Transact sends a read request and returns the 8 reply bytes packed
	// into a uint64, first byte most significant. The reply header must
	// show up within scanTimeout.
	Transact(req trinamic.Datagram, scanTimeout time.Duration) (uint64, error)
	// Send transmits a datagram without expecting a reply.
	Send(d trinamic.Datagram) error
}

// link implements the parts common to buffered and direct transceivers.
type link struct {
	port  hal.Port
	clock hal.Clock
	conf  Config
}

func (l *link) flush() {
	n, err := hal.Drain(l.port, maxFlush)
	if err != nil {
		glog.Warningf("flush rx: %v", err)
		return
	}
	if n > 0 && glog.V(4) {
		glog.Infof("flushed %d bytes", n)
	}
}

func (l *link) write(d trinamic.Datagram) error {
	if glog.V(4) {
		glog.Infof("TX % x", []byte(d))
	}
	n, err := l.port.Write(d)
	if err == nil && n != len(d) {
		err = io.ErrShortWrite
	}
	return err
}

// readByte polls the port until a byte arrives or deadline passes.
func (l *link) readByte(deadline time.Time) (byte, bool, error) {
	for l.clock.Now().Before(deadline) {
		b, ok, err := l.port.TryReadByte()
		if err != nil || ok {
			return b, ok, err
		}
	}
	return 0, false, nil
}

// capture scans for the reply header of reg and reads the rest of the frame.
func (l *link) capture(reg byte, scanTimeout time.Duration) (uint64, error) {
	s := NewSynchronizer(reg)
	deadline := l.clock.Now().Add(scanTimeout)
	for {
		b, ok, err := l.readByte(deadline)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNoReply
		}
		if s.Feed(b) {
			break
		}
	}
	out := uint64(s.Window())
	deadline = l.clock.Now().Add(l.conf.AbortWindow)
	for i := 3; i < trinamic.ReplyLen; i++ {
		b, ok, err := l.readByte(deadline)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrIncompleteFrame
		}
		out = out<<8 | uint64(b)
	}
	if glog.V(4) {
		glog.Infof("RX %016x", out)
	}
	return out, nil
}

// Buffered is the transceiver for a bus behind a direction-controlled
// bus buffer.
type Buffered struct {
	link
	buffer     *BusBuffer
	turnaround time.Duration
}

// NewBuffered creates a Buffered transceiver. The turnaround delay is
// derived from the baud rate of port.
func NewBuffered(port hal.Port, buffer *BusBuffer, conf Config) *Buffered {
	conf = conf.withDefaults()
	if buffer == nil {
		buffer = NewBusBuffer()
	}
	return &Buffered{
		link:       link{port: port, clock: conf.Clock, conf: conf},
		buffer:     buffer,
		turnaround: TurnaroundDelay(port.Baud()),
	}
}

// Turnaround returns the delay between transmission and switching to receive.
func (t *Buffered) Turnaround() time.Duration {
	return t.turnaround
}

// Buffer returns the shared bus buffer.
func (t *Buffered) Buffer() *BusBuffer {
	return t.buffer
}

// Transact implements Transceiver.
func (t *Buffered) Transact(req trinamic.Datagram, scanTimeout time.Duration) (uint64, error) {
	t.flush()
	defer t.flush()
	if err := t.buffer.Set(Transmit); err != nil {
		return 0, err
	}
	if err := t.write(req); err != nil {
		if rerr := t.buffer.Set(Receive); rerr != nil {
			glog.Warningf("release bus after write error: %v", rerr)
		}
		return 0, err
	}
	t.clock.Sleep(t.turnaround)
	if err := t.buffer.Set(Receive); err != nil {
		return 0, err
	}
	t.clock.Sleep(t.conf.ReplyDelay)
	return t.capture(req.Register(), scanTimeout)
}

// Send implements Transceiver. The buffer is left driving the bus.
func (t *Buffered) Send(d trinamic.Datagram) error {
	if err := t.buffer.Set(Transmit); err != nil {
		return err
	}
	err := t.write(d)
	t.clock.Sleep(t.conf.ReplyDelay)
	return err
}

// Direct is the transceiver for a UART wired straight to the driver.
type Direct struct {
	link
}

// NewDirect creates a Direct transceiver.
func NewDirect(port hal.Port, conf Config) *Direct {
	conf = conf.withDefaults()
	return &Direct{link: link{port: port, clock: conf.Clock, conf: conf}}
}

// Transact implements Transceiver.
func (t *Direct) Transact(req trinamic.Datagram, scanTimeout time.Duration) (uint64, error) {
	t.flush()
	defer t.flush()
	if err := t.write(req); err != nil {
		return 0, err
	}
	t.clock.Sleep(t.conf.ReplyDelay)
	return t.capture(req.Register(), scanTimeout)
}

// Send implements Transceiver.
func (t *Direct) Send(d trinamic.Datagram) error {
	err := t.write(d)
	t.clock.Sleep(t.conf.ReplyDelay)
	return err
}
