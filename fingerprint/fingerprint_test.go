package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	const s = "abcd1234abcd1234abcd1234abcd1234"
	f, err := FromHex(s)
	require.NoError(t, err)
	require.Equal(t, s, f.String())
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, 8))
	require.Error(t, err)
}

func TestZeroIsZero(t *testing.T) {
	var f Fingerprint
	require.True(t, f.IsZero())
	f[0] = 1
	require.False(t, f.IsZero())
}

func TestTruncated9(t *testing.T) {
	f, err := FromHex("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	trunc := f.Truncated9()
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}, trunc[:])
}

func TestCompareAndSortOrder(t *testing.T) {
	a, _ := FromHex("00000000000000000000000000000000")
	b, _ := FromHex("7f000000000000000000000000000000")
	c, _ := FromHex("ff000000000000000000000000000000")

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 0, a.Compare(a))
	require.Equal(t, 1, c.Compare(b))
}
