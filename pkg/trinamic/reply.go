package trinamic

import "encoding/binary"

// Reply is a captured read reply in wire order.
type Reply [ReplyLen]byte

// NewReply encodes the reply a driver sends for reg.
func NewReply(reg byte, value uint32) Reply {
	var r Reply
	r[0], r[1], r[2] = Sync, ReplyAddress, reg&RegisterMask
	binary.BigEndian.PutUint32(r[3:7], value)
	r[7] = CRC8(r[:7])
	return r
}

// ReplyFromUint64 splits an accumulated 64-bit value into wire bytes,
// the first received byte being the most significant.
func ReplyFromUint64(v uint64) (r Reply) {
	binary.BigEndian.PutUint64(r[:], v)
	return
}

// Uint64 packs the reply into a 64-bit value.
func (r Reply) Uint64() uint64 {
	return binary.BigEndian.Uint64(r[:])
}

// Register returns the echoed register address.
func (r Reply) Register() byte {
	return r[2]
}

// Value returns the register value carried by the reply.
func (r Reply) Value() uint32 {
	return binary.BigEndian.Uint32(r[3:7])
}

// Validate verifies the checksum of the reply.
func (r Reply) Validate() error {
	crc := CRC8(r[:7])
	if crc != r[7] {
		return &ChecksumError{Expected: crc, Actual: r[7]}
	}
	if crc == 0 {
		return ErrZeroChecksum
	}
	return nil
}

// ValidateFor verifies the reply and that it answers a read of reg.
func (r Reply) ValidateFor(reg byte) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r[0] != Sync || r[1] != ReplyAddress {
		return ErrBadSync
	}
	if want := reg & RegisterMask; r[2] != want {
		return &RegisterMismatchError{Expected: want, Actual: r[2]}
	}
	return nil
}
