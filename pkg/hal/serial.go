package hal

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// DefaultBaud is the default UART baud rate for TMC drivers.
const DefaultBaud = 115200

// SerialConfig holds configuration for opening a serial port.
type SerialConfig struct {
	Name string
	Baud int
}

// SerialPort implements Port over a host serial device.
type SerialPort struct {
	port serial.Port
	name string
	baud int
	buf  [1]byte
}

// OpenSerial opens a serial port in 8N1 mode with non-blocking reads.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if cfg.Name == "" {
		return nil, errors.New("serial port name is required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Name, err)
	}
	// zero timeout makes Read return immediately when nothing is buffered.
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	glog.Infof("serial port %s opened at %d baud", cfg.Name, cfg.Baud)
	return &SerialPort{port: port, name: cfg.Name, baud: cfg.Baud}, nil
}

// Write implements Port.
func (p *SerialPort) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if err == nil {
		// the datagram must be on the wire before the bus turns around.
		err = p.port.Drain()
	}
	return n, err
}

// TryReadByte implements Port.
func (p *SerialPort) TryReadByte() (byte, bool, error) {
	n, err := p.port.Read(p.buf[:])
	if err != nil {
		return 0, false, err
	}
	return p.buf[0], n > 0, nil
}

// Baud implements Port.
func (p *SerialPort) Baud() int {
	return p.baud
}

// Name returns the device name.
func (p *SerialPort) Name() string {
	return p.name
}

// Close implements io.Closer.
func (p *SerialPort) Close() error {
	return p.port.Close()
}

// ListPorts enumerates serial devices on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
