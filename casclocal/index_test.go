package casclocal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/cascette-go/fingerprint"
)

func mustFP(t *testing.T, hex string) fingerprint.Fingerprint {
	t.Helper()
	for len(hex) < 32 {
		hex += "0"
	}
	fp, err := fingerprint.FromHex(hex)
	require.NoError(t, err)
	return fp
}

func TestIndexLookupAndMarshalRoundTrip(t *testing.T) {
	entries := map[[fingerprint.TruncatedSize]byte]Locator{
		mustFP(t, "aa").Truncated9():     {ArchiveNumber: 1, Offset: 100, Size: 200},
		mustFP(t, "bb").Truncated9():     {ArchiveNumber: 2, Offset: 300, Size: 400},
		mustFP(t, "cc").Truncated9():     {ArchiveNumber: 3, Offset: 500, Size: 600},
	}
	idx := NewIndex(4, entries)

	loc, ok := idx.Lookup(mustFP(t, "bb"))
	require.True(t, ok)
	require.Equal(t, uint16(2), loc.ArchiveNumber)
	require.Equal(t, uint32(300), loc.Offset)
	require.Equal(t, uint32(400), loc.Size)

	_, ok = idx.Lookup(mustFP(t, "dd"))
	require.False(t, ok)

	raw := idx.Marshal()
	reparsed, err := Parse(raw, 4)
	require.NoError(t, err)

	loc2, ok := reparsed.Lookup(mustFP(t, "aa"))
	require.True(t, ok)
	require.Equal(t, uint16(1), loc2.ArchiveNumber)
}

func TestIndexRejectsCorruptChecksum(t *testing.T) {
	entries := map[[fingerprint.TruncatedSize]byte]Locator{
		mustFP(t, "11").Truncated9(): {ArchiveNumber: 1, Offset: 1, Size: 1},
	}
	idx := NewIndex(1, entries)
	raw := idx.Marshal()
	// Corrupt a byte in the record payload (after the 4-byte count prefix).
	raw[6] ^= 0xFF

	_, err := Parse(raw, 1)
	require.Error(t, err)
}
