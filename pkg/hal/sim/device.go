package sim

import (
	"sync"

	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// Device simulates the register file of a TMC2209.
type Device struct {
	Address byte
	// Silent devices never reply.
	Silent bool
	// CorruptReplies corrupts the checksum of the next N replies.
	CorruptReplies int
	// TruncateReplies cuts the next N replies after the header.
	TruncateReplies int
	// Noise is sent on the bus before every reply.
	Noise []byte

	lock      sync.Mutex
	registers map[byte]uint32
	reads     int
	writes    int
}

// Power-on values of a TMC2209.
var defaultRegisters = map[byte]uint32{
	trinamic.GCONF:      0x00000141,
	trinamic.GSTAT:      0x00000001,
	trinamic.IFCNT:      0,
	trinamic.IOIN:       trinamic.TMC2209Version<<24 | 0x40,
	trinamic.IHOLD_IRUN: 0x00001f10,
	trinamic.TPOWERDOWN: 0x00000014,
	trinamic.TSTEP:      0x000fffff,
	trinamic.CHOPCONF:   0x10000053,
	trinamic.DRV_STATUS: 0xc0000000,
	trinamic.PWMCONF:    0xc10d0024,
	trinamic.PWM_SCALE:  0x00000000,
	trinamic.PWM_AUTO:   0x000e0024,
	trinamic.SG_RESULT:  0x00000000,
}

// NewDevice creates a Device at addr with power-on register values.
func NewDevice(addr byte) *Device {
	d := &Device{Address: addr, registers: make(map[byte]uint32)}
	for reg, val := range defaultRegisters {
		d.registers[reg] = val
	}
	return d
}

// Register reads a register directly.
func (d *Device) Register(reg byte) uint32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.registers[reg]
}

// SetRegister sets a register directly.
func (d *Device) SetRegister(reg byte, val uint32) {
	d.lock.Lock()
	d.registers[reg] = val
	d.lock.Unlock()
}

// Reads returns the number of read requests received.
func (d *Device) Reads() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.reads
}

// Writes returns the number of write requests received.
func (d *Device) Writes() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.writes
}

func (d *Device) write(reg byte, val uint32) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.writes++
	switch reg {
	case trinamic.GSTAT:
		// write 1 to clear.
		d.registers[reg] &^= val
	case trinamic.IFCNT, trinamic.IOIN, trinamic.DRV_STATUS, trinamic.SG_RESULT:
		// read only.
	default:
		d.registers[reg] = val
	}
	d.registers[trinamic.IFCNT] = (d.registers[trinamic.IFCNT] + 1) & 0xff
}

// reply returns the bytes put on the bus for a read of reg.
func (d *Device) reply(reg byte) []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.reads++
	if d.Silent {
		return nil
	}
	r := trinamic.NewReply(reg, d.registers[reg])
	out := append([]byte{}, d.Noise...)
	if d.CorruptReplies > 0 {
		d.CorruptReplies--
		r[7] ^= 0xff
	}
	if d.TruncateReplies > 0 {
		d.TruncateReplies--
		return append(out, r[:3]...)
	}
	return append(out, r[:]...)
}
