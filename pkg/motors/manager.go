package motors

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	fx "github.com/robotalks/tmcbus/pkg/framework"
	"github.com/robotalks/tmcbus/pkg/hal"
	"github.com/robotalks/tmcbus/pkg/trinamic"
	"github.com/robotalks/tmcbus/pkg/trinamic/uart"
)

// Bus is a physical UART bus shared by up to 4 drivers. Transactions on a
// bus are serialized.
type Bus struct {
	Name   string
	Port   hal.Port
	Buffer *uart.BusBuffer

	conf uart.Config
	lock sync.Mutex
	tr   uart.Transceiver
}

// Transact implements uart.Transceiver.
func (b *Bus) Transact(req trinamic.Datagram, scanTimeout time.Duration) (uint64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.tr.Transact(req, scanTimeout)
}

// Send implements uart.Transceiver.
func (b *Bus) Send(d trinamic.Datagram) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.tr.Send(d)
}

// Buffered tells if the bus has a bus buffer.
func (b *Bus) Buffered() bool {
	return b.Buffer != nil
}

// Manager owns buses and the drivers on them.
type Manager struct {
	lock    sync.RWMutex
	buses   map[string]*Bus
	drivers map[string]*TMC2209
	busOf   map[string]string
	axes    []string
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		buses:   make(map[string]*Bus),
		drivers: make(map[string]*TMC2209),
		busOf:   make(map[string]string),
	}
}

// AddBus adds a bus behind a bus buffer switched by pin. A nil pin leaves
// the buffer direction unmanaged. Adding an existing name returns the
// existing bus, keeping its first pin.
func (m *Manager) AddBus(name string, port hal.Port, pin gpio.PinOut, conf uart.Config) (*Bus, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if bus := m.buses[name]; bus != nil {
		if bus.Buffer == nil {
			return nil, fmt.Errorf("%w: %s has no bus buffer", ErrBusKind, name)
		}
		if err := bus.Buffer.Init(pin); err != nil {
			return nil, err
		}
		return bus, nil
	}
	buffer := uart.NewBusBuffer()
	if err := buffer.Init(pin); err != nil {
		return nil, err
	}
	bus := &Bus{
		Name:   name,
		Port:   port,
		Buffer: buffer,
		conf:   conf,
		tr:     uart.NewBuffered(port, buffer, conf),
	}
	m.buses[name] = bus
	glog.Infof("bus %s added, baud %d", name, port.Baud())
	return bus, nil
}

// AddDirectBus adds a bus wired straight to the drivers. An existing bus
// of the name is returned as is.
func (m *Manager) AddDirectBus(name string, port hal.Port, conf uart.Config) *Bus {
	m.lock.Lock()
	defer m.lock.Unlock()
	if bus := m.buses[name]; bus != nil {
		if bus.Buffer != nil {
			glog.Warningf("bus %s already added with a bus buffer", name)
		}
		return bus
	}
	bus := &Bus{
		Name: name,
		Port: port,
		conf: conf,
		tr:   uart.NewDirect(port, conf),
	}
	m.buses[name] = bus
	glog.Infof("bus %s added (direct), baud %d", name, port.Baud())
	return bus
}

// Bus returns the bus by name.
func (m *Manager) Bus(name string) *Bus {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.buses[name]
}

// NewDriver creates a driver for conf on the named bus.
func (m *Manager) NewDriver(busName string, conf Config) (*TMC2209, error) {
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	bus := m.buses[busName]
	if bus == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBus, busName)
	}
	if _, exists := m.drivers[conf.Axis]; exists {
		return nil, &AxisError{Axis: conf.Axis, Bus: busName, Reason: "already registered"}
	}
	for axis, drv := range m.drivers {
		if m.busOf[axis] == busName && drv.conf.Address == conf.Address {
			return nil, &AxisError{Axis: conf.Axis, Bus: busName, Reason: fmt.Sprintf("address %d used by %s", conf.Address, axis)}
		}
	}
	drv := NewTMC2209(conf, uart.NewClient(bus, conf.Address, bus.conf))
	m.drivers[conf.Axis] = drv
	m.busOf[conf.Axis] = busName
	m.axes = append(m.axes, conf.Axis)
	sort.Strings(m.axes)
	return drv, nil
}

// Driver returns the driver of axis.
func (m *Manager) Driver(axis string) (*TMC2209, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if drv := m.drivers[axis]; drv != nil {
		return drv, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, axis)
}

// Axes returns the sorted axis names.
func (m *Manager) Axes() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]string(nil), m.axes...)
}

// Drivers returns all drivers ordered by axis name.
func (m *Manager) Drivers() []*TMC2209 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	drivers := make([]*TMC2209, 0, len(m.axes))
	for _, axis := range m.axes {
		drivers = append(drivers, m.drivers[axis])
	}
	return drivers
}

// InitAll initializes every driver and aggregates failures.
func (m *Manager) InitAll() error {
	var errs fx.AggregatedError
	for _, drv := range m.Drivers() {
		errs.Add(drv.Init())
	}
	return errs.Aggregate()
}

// Close closes the ports implementing io.Closer.
func (m *Manager) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	var errs fx.AggregatedError
	for _, bus := range m.buses {
		if closer, ok := bus.Port.(io.Closer); ok {
			errs.Add(closer.Close())
		}
	}
	return errs.Aggregate()
}
