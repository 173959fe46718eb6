package manifest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/cascette-go/fingerprint"
)

func TestEncodingBuildParseRoundTrip(t *testing.T) {
	cEntries := []CKeyEntry{
		{CKey: mustFP(t, "01"), EKeys: []fingerprint.Fingerprint{mustFP(t, "11")}, EncodedSize: 100},
		{CKey: mustFP(t, "02"), EKeys: []fingerprint.Fingerprint{mustFP(t, "12"), mustFP(t, "13")}, EncodedSize: 200},
	}
	eEntries := []EKeyEntry{
		{EKey: mustFP(t, "11"), ESpecIndex: 0, EncodedSize: 100},
		{EKey: mustFP(t, "12"), ESpecIndex: 1, EncodedSize: 150},
		{EKey: mustFP(t, "13"), ESpecIndex: 1, EncodedSize: 50},
	}
	enc := NewEncoding(cEntries, eEntries, []string{"z", "n"})

	raw := BuildEncoding(enc)
	parsed, err := ParseEncoding(raw)
	require.NoError(t, err)

	ekeys, ok := parsed.CKeyToEKeys(mustFP(t, "02"))
	require.True(t, ok)
	require.ElementsMatch(t, []fingerprint.Fingerprint{mustFP(t, "12"), mustFP(t, "13")}, ekeys)

	spec, ok := parsed.EKeyToESpec(mustFP(t, "12"))
	require.True(t, ok)
	require.Equal(t, "n", spec)

	_, ok = parsed.CKeyToEKeys(mustFP(t, "ff"))
	require.False(t, ok)
}

func TestEncodingManyPagesBinarySearch(t *testing.T) {
	var cEntries []CKeyEntry
	var eEntries []EKeyEntry
	for i := 0; i < 300; i++ {
		ck, err := fingerprint.FromHex(fmt.Sprintf("%032x", i+1))
		require.NoError(t, err)
		cEntries = append(cEntries, CKeyEntry{CKey: ck, EKeys: []fingerprint.Fingerprint{ck}, EncodedSize: uint64(i)})
		eEntries = append(eEntries, EKeyEntry{EKey: ck, ESpecIndex: 0, EncodedSize: uint64(i)})
	}
	enc := NewEncoding(cEntries, eEntries, []string{"z"})
	raw := BuildEncoding(enc)
	parsed, err := ParseEncoding(raw)
	require.NoError(t, err)
	require.True(t, len(parsed.cKeyPages) > 1, "expected multiple pages to exercise the TOC search")

	for _, e := range cEntries {
		got, ok := parsed.CKeyToEKeys(e.CKey)
		require.True(t, ok)
		require.Equal(t, e.EKeys, got)
	}
}
