package trinamic

import (
	"encoding/binary"
)

// Protocol constants.
const (
	// Sync is the first byte of every datagram.
	Sync byte = 0x05
	// ReadFlag is or-ed into the register address of a read request.
	ReadFlag byte = 0x00
	// WriteFlag is or-ed into the register address of a write request.
	WriteFlag byte = 0x80
	// RegisterMask extracts the register address.
	RegisterMask byte = 0x7f
	// ReplyAddress is the address field of every reply.
	ReplyAddress byte = 0xff
)

// Datagram sizes, including the checksum byte.
const (
	WriteLen       = 8
	ReadRequestLen = 4
	ReplyLen       = 8
)

// Datagram is an encoded frame ending with its checksum.
type Datagram []byte

// WriteDatagram encodes a register write request.
func WriteDatagram(addr, reg byte, value uint32) Datagram {
	d := make(Datagram, WriteLen)
	d[0], d[1], d[2] = Sync, addr, (reg&RegisterMask)|WriteFlag
	binary.BigEndian.PutUint32(d[3:7], value)
	d[7] = CRC8(d[:7])
	return d
}

// ReadRequest encodes a register read request.
func ReadRequest(addr, reg byte) Datagram {
	d := Datagram{Sync, addr, (reg & RegisterMask) | ReadFlag, 0}
	d[3] = CRC8(d[:3])
	return d
}

// Payload returns the bytes covered by the checksum.
func (d Datagram) Payload() []byte {
	if len(d) == 0 {
		return nil
	}
	return d[:len(d)-1]
}

// Checksum returns the trailing checksum byte.
func (d Datagram) Checksum() byte {
	if len(d) == 0 {
		return 0
	}
	return d[len(d)-1]
}

// Verify checks the sync byte and the checksum.
func (d Datagram) Verify() error {
	if len(d) < 2 {
		return ErrBadLength
	}
	if d[0] != Sync {
		return ErrBadSync
	}
	if crc := CRC8(d.Payload()); crc != d.Checksum() {
		return &ChecksumError{Expected: crc, Actual: d.Checksum()}
	}
	return nil
}

// IsWrite tells if the datagram is a write request.
func (d Datagram) IsWrite() bool {
	return len(d) > 2 && d[2]&WriteFlag != 0
}

// Address returns the slave address the datagram is sent to.
func (d Datagram) Address() byte {
	if len(d) < 2 {
		return 0
	}
	return d[1]
}

// Register returns the register address without the write flag.
func (d Datagram) Register() byte {
	if len(d) < 3 {
		return 0
	}
	return d[2] & RegisterMask
}

// DecodeWrite decodes a write request.
func DecodeWrite(d Datagram) (addr, reg byte, value uint32, err error) {
	if len(d) != WriteLen {
		err = ErrBadLength
		return
	}
	if err = d.Verify(); err != nil {
		return
	}
	return d[1], d[2] & RegisterMask, binary.BigEndian.Uint32(d[3:7]), nil
}

// DecodeReadRequest decodes a read request.
func DecodeReadRequest(d Datagram) (addr, reg byte, err error) {
	if len(d) != ReadRequestLen {
		err = ErrBadLength
		return
	}
	if err = d.Verify(); err != nil {
		return
	}
	return d[1], d[2] & RegisterMask, nil
}

// SyncPattern returns the 24-bit header expected at the start of a reply
// to a read request of reg.
func SyncPattern(reg byte) uint32 {
	return uint32(Sync)<<16 | uint32(ReplyAddress)<<8 | uint32(reg&RegisterMask)
}
