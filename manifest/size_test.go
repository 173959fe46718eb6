package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeManifestBuildParseRoundTrip(t *testing.T) {
	m := &SizeManifest{
		Version:   2,
		KeySize:   16,
		ESizeSize: 4,
		Entries: []SizeEntry{
			{Key: mustFP(t, "aa"), KeyHash: 0x1234, ESize: 1000},
			{Key: mustFP(t, "bb"), KeyHash: 0x5678, ESize: 2000},
		},
	}
	var total uint64
	for _, e := range m.Entries {
		total += e.ESize
	}
	m.TotalSize = total

	raw := BuildSizeManifest(m)
	parsed, err := ParseSizeManifest(raw)
	require.NoError(t, err)
	require.NoError(t, parsed.Validate())
	require.Len(t, parsed.Entries, 2)
	require.Equal(t, uint64(3000), parsed.TotalSize)
	require.Equal(t, uint16(0x1234), parsed.Entries[0].KeyHash)
	require.Equal(t, uint16(0x5678), parsed.Entries[1].KeyHash)
}

// TestSizeManifestKeyHashIsIndependentOfKeyBytes mirrors
// size/manifest.rs's add_entry(vec![0xAA;16], 0x1234, ...) fixture: an
// arbitrary key_hash unrelated to the key's own bytes must round-trip
// unchanged, not be rejected or recomputed.
func TestSizeManifestKeyHashIsIndependentOfKeyBytes(t *testing.T) {
	key := mustFP(t, "aa") // trailing bytes are zero-padded, unrelated to 0x1234
	m := &SizeManifest{
		Version:   2,
		KeySize:   16,
		ESizeSize: 4,
		Entries:   []SizeEntry{{Key: key, KeyHash: 0x1234, ESize: 10}},
		TotalSize: 10,
	}
	raw := BuildSizeManifest(m)
	parsed, err := ParseSizeManifest(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), parsed.Entries[0].KeyHash)
	require.Equal(t, key, parsed.Entries[0].Key)
}

func TestSizeManifestV1HasWiderTotalField(t *testing.T) {
	m := &SizeManifest{
		Version:   1,
		KeySize:   16,
		ESizeSize: 8,
		Entries:   []SizeEntry{{Key: mustFP(t, "05"), KeyHash: 0x0005, ESize: 1 << 40}},
		TotalSize: 1 << 40,
	}
	raw := BuildSizeManifest(m)
	parsed, err := ParseSizeManifest(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), parsed.TotalSize)
	require.NoError(t, parsed.Validate())
}

func TestSizeManifestRejectsMismatchedTotal(t *testing.T) {
	m := &SizeManifest{
		Version:   2,
		KeySize:   16,
		ESizeSize: 4,
		Entries:   []SizeEntry{{Key: mustFP(t, "01"), KeyHash: 0x0001, ESize: 1000}},
		TotalSize: 500,
	}
	raw := BuildSizeManifest(m)
	parsed, err := ParseSizeManifest(raw)
	require.NoError(t, err)
	require.Error(t, parsed.Validate())
}

func TestSizeManifestRejectsSentinelKeyHash(t *testing.T) {
	// A key_hash of the reserved 0x0000 sentinel cannot round-trip through
	// this format, regardless of what the key bytes are.
	m := &SizeManifest{
		Version:   2,
		KeySize:   16,
		ESizeSize: 4,
		Entries:   []SizeEntry{{Key: mustFP(t, "01"), KeyHash: 0x0000, ESize: 1}},
		TotalSize: 1,
	}
	raw := BuildSizeManifest(m)
	_, err := ParseSizeManifest(raw)
	require.Error(t, err)
}
