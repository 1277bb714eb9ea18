// Package trinamic provides the Trinamic UART datagram format.
package trinamic

// A Trinamic UART bus carries three kinds of datagrams between the master
// (this host) and the stepper drivers:
//
//   write request  (8 bytes): sync, address, reg|0x80, value (BE32), crc
//   read request   (4 bytes): sync, address, reg, crc
//   read reply     (8 bytes): sync, 0xff, reg, value (BE32), crc
//
// The checksum is CRC8 (polynomial x^8+x^2+x+1) computed over all preceding
// bytes, shifting in the bits of each byte LSB first.
//
// The reply address 0xff is the master address. Together with the sync byte
// and the register echo it forms a 24-bit header which is used to locate the
// reply inside a byte stream that also contains the echo of the request.
