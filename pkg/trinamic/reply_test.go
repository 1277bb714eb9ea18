package trinamic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReply(t *testing.T) {
	r := NewReply(0x10, 300)
	require.Equal(t, Reply{0x05, 0xff, 0x10, 0x00, 0x00, 0x01, 0x2c, 0xa7}, r)
	require.NoError(t, r.Validate())
	require.NoError(t, r.ValidateFor(0x10))
	require.Equal(t, uint32(0x12c), r.Value())
	require.Equal(t, byte(0x10), r.Register())
	require.Equal(t, uint64(0x05ff100000012ca7), r.Uint64())
	require.Equal(t, r, ReplyFromUint64(r.Uint64()))
}

func TestReplyBitFlips(t *testing.T) {
	for _, r := range []Reply{
		NewReply(0x10, 300),
		NewReply(IOIN, 0x21000040),
		NewReply(DRV_STATUS, 0xc0000000),
		NewReply(GCONF, 0),
	} {
		require.NoError(t, r.Validate())
		for i := 0; i < 7; i++ {
			for bit := uint(0); bit < 8; bit++ {
				flipped := r
				flipped[i] ^= 1 << bit
				require.Errorf(t, flipped.Validate(), "byte %d bit %d", i, bit)
			}
		}
	}
}

func TestReplyZeroChecksum(t *testing.T) {
	var r Reply
	require.Equal(t, ErrZeroChecksum, r.Validate())
	require.Equal(t, ErrZeroChecksum, ReplyFromUint64(0).Validate())

	r[7] = 0x5a
	var crcErr *ChecksumError
	require.ErrorAs(t, r.Validate(), &crcErr)
	require.Equal(t, byte(0), crcErr.Expected)
	require.Equal(t, byte(0x5a), crcErr.Actual)
}

func TestReplyValidateFor(t *testing.T) {
	r := NewReply(GCONF, 0x1c1)
	var mismatch *RegisterMismatchError
	require.ErrorAs(t, r.ValidateFor(GSTAT), &mismatch)
	require.Equal(t, GSTAT, mismatch.Expected)
	require.Equal(t, GCONF, mismatch.Actual)

	r[1] = 0x00
	r[7] = CRC8(r[:7])
	require.Equal(t, ErrBadSync, r.ValidateFor(GCONF))
}
