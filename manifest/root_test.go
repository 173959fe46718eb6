package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectRootVersionLegacyFallsBackToV1(t *testing.T) {
	v, err := DetectRootVersion([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	require.NoError(t, err)
	require.Equal(t, RootV1, v)
}

func TestRootBuildParseRoundTrip(t *testing.T) {
	root := &Root{
		Version: RootV2,
		Blocks: []RootBlock{
			{
				ContentFlags: 0,
				LocaleFlags:  0x2, // enUS
				Entries: []RootEntry{
					{FileDataID: 10, NameHash: 0xAAAA, CKey: mustFP(t, "01")},
					{FileDataID: 11, NameHash: 0xBBBB, CKey: mustFP(t, "02")},
					{FileDataID: 20, NameHash: 0xCCCC, CKey: mustFP(t, "03")},
				},
			},
		},
	}

	raw := BuildRoot(root)
	parsed, err := ParseRoot(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Blocks, 1)
	require.Len(t, parsed.Blocks[0].Entries, 3)

	ckey, ok := parsed.ResolveFDID(11, 0, 0)
	require.True(t, ok)
	require.Equal(t, mustFP(t, "02"), ckey)

	ckey, ok = parsed.ResolvePathHash(0xCCCC, 0, 0)
	require.True(t, ok)
	require.Equal(t, mustFP(t, "03"), ckey)

	_, ok = parsed.ResolveFDID(999, 0, 0)
	require.False(t, ok)
}

func TestRootLocaleFilterExcludesNonMatchingBlocks(t *testing.T) {
	root := &Root{
		Version: RootV2,
		Blocks: []RootBlock{
			{LocaleFlags: 0x2, Entries: []RootEntry{{FileDataID: 1, CKey: mustFP(t, "01")}}},
			{LocaleFlags: 0x4, Entries: []RootEntry{{FileDataID: 1, CKey: mustFP(t, "02")}}},
		},
	}
	raw := BuildRoot(root)
	parsed, err := ParseRoot(raw)
	require.NoError(t, err)

	ckey, ok := parsed.ResolveFDID(1, 0x4, 0)
	require.True(t, ok)
	require.Equal(t, mustFP(t, "02"), ckey)
}

func TestRootContentFlagExclusionFiltersBlock(t *testing.T) {
	root := &Root{
		Version: RootV2,
		Blocks: []RootBlock{
			{ContentFlags: 0x1, Entries: []RootEntry{{FileDataID: 5, CKey: mustFP(t, "01")}}},
		},
	}
	raw := BuildRoot(root)
	parsed, err := ParseRoot(raw)
	require.NoError(t, err)

	_, ok := parsed.ResolveFDID(5, 0, 0x1)
	require.False(t, ok, "block's content flags intersect the exclusion mask")

	ckey, ok := parsed.ResolveFDID(5, 0, 0x2)
	require.True(t, ok)
	require.Equal(t, mustFP(t, "01"), ckey)
}
