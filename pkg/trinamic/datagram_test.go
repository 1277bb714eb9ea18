package trinamic

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC8(t *testing.T) {
	testCases := []struct {
		name   string
		data   []byte
		expect byte
	}{
		{"empty", nil, 0},
		{"read request", []byte{0x05, 0x00, 0x10}, 0x70},
		{"read IOIN", []byte{0x05, 0x00, 0x06}, 0x6f},
		{"reply", []byte{0x05, 0xff, 0x10, 0x00, 0x00, 0x01, 0x2c}, 0xa7},
		{"write", []byte{0x05, 0x00, 0x90, 0x00, 0x00, 0x01, 0x2c}, 0x6a},
		{"all zero", make([]byte, 7), 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, CRC8(tc.data))
		})
	}
}

func TestReadRequest(t *testing.T) {
	d := ReadRequest(0x00, 0x10)
	require.Equal(t, Datagram{0x05, 0x00, 0x10, 0x70}, d)
	require.NoError(t, d.Verify())
	require.False(t, d.IsWrite())
	require.Equal(t, uint32(0x05ff10), SyncPattern(d.Register()))

	addr, reg, err := DecodeReadRequest(d)
	require.NoError(t, err)
	require.Equal(t, byte(0), addr)
	require.Equal(t, byte(0x10), reg)
}

func TestWriteDatagram(t *testing.T) {
	d := WriteDatagram(0x00, 0x10, 300)
	require.Equal(t, Datagram{0x05, 0x00, 0x90, 0x00, 0x00, 0x01, 0x2c, 0x6a}, d)
	require.True(t, d.IsWrite())
	require.Equal(t, byte(0x10), d.Register())
	require.Equal(t, []byte(d[:7]), d.Payload())
	require.Equal(t, byte(0x6a), d.Checksum())
}

func TestWriteDatagramRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	values := []uint32{0, 1, 0x7fffffff, 0x80000000, 0xffffffff, 0x0000012c}
	for i := 0; i < 64; i++ {
		values = append(values, rnd.Uint32())
	}
	for reg := byte(0); reg <= RegisterMask; reg++ {
		for addr := byte(0); addr < 4; addr++ {
			for _, val := range values {
				a, r, v, err := DecodeWrite(WriteDatagram(addr, reg, val))
				require.NoError(t, err)
				require.Equal(t, addr, a)
				require.Equal(t, reg, r)
				require.Equal(t, val, v)
			}
		}
	}
}

func TestDatagramVerify(t *testing.T) {
	d := WriteDatagram(1, GCONF, 0x1c1)
	require.NoError(t, d.Verify())

	bad := append(Datagram{}, d...)
	bad[4] ^= 0x10
	var crcErr *ChecksumError
	require.ErrorAs(t, bad.Verify(), &crcErr)

	bad = append(Datagram{}, d...)
	bad[0] = 0x55
	require.Equal(t, ErrBadSync, bad.Verify())

	require.Equal(t, ErrBadLength, Datagram{0x05}.Verify())
	_, _, _, err := DecodeWrite(d[:4])
	require.Equal(t, ErrBadLength, err)
	_, _, err = DecodeReadRequest(d)
	require.Equal(t, ErrBadLength, err)
}

func TestParseRegister(t *testing.T) {
	reg, err := ParseRegister("drv_status")
	require.NoError(t, err)
	require.Equal(t, DRV_STATUS, reg)
	reg, err = ParseRegister("0x10")
	require.NoError(t, err)
	require.Equal(t, IHOLD_IRUN, reg)
	_, err = ParseRegister("0x80")
	require.Error(t, err)
	_, err = ParseRegister("nothing")
	require.Error(t, err)
	require.Equal(t, "IOIN", RegisterName(IOIN))
	require.Equal(t, "0x7f", RegisterName(0x7f))
	require.Equal(t, "GCONF", RegisterNames()[0])
}

func TestField(t *testing.T) {
	v := FieldMres.Set(0x10000053, 4)
	require.Equal(t, uint32(0x14000053), v)
	require.Equal(t, uint32(4), FieldMres.Get(v))
	require.Equal(t, uint32(3), FieldToff.Get(v))
	v = FieldToff.Set(v, 0)
	require.Equal(t, uint32(0x14000050), v)
	require.Equal(t, uint32(0x21), FieldVersion.Get(0x21000040))
	require.Equal(t, uint32(1<<2), FieldEnSpreadCycle.SetBool(0, true))
	require.Equal(t, uint32(0), FieldEnSpreadCycle.SetBool(1<<2, false))
}

func TestDecodeDriverStatus(t *testing.T) {
	s := DecodeDriverStatus(0xc01f0042)
	require.True(t, s.Standstill)
	require.True(t, s.StealthChop)
	require.Equal(t, uint32(0x1f), s.CurrentScale)
	require.True(t, s.OverTemp)
	require.True(t, s.OpenLoadA)
	require.Equal(t, []string{"ot", "ola"}, s.Faults())
	require.Empty(t, DecodeDriverStatus(0).Faults())
}
