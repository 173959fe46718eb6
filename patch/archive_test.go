package patch

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

func TestArchiveBuildParseRoundTrip(t *testing.T) {
	a := &Archive{
		Version:       2,
		FileKeySize:   16,
		OldKeySize:    16,
		PatchKeySize:  16,
		BlockSizeBits: 16,
		Flags:         0,
		Entries: []Entry{
			{OldCKey: mustFP(t, "01"), NewCKey: mustFP(t, "02"), PatchEKey: mustFP(t, "03"), CompressionSpec: "{*=z}"},
		},
	}

	raw := BuildArchive(a)
	parsed, err := ParseArchive(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 1)
	require.Equal(t, "{*=z}", parsed.Entries[0].CompressionSpec)

	entry, ok := parsed.FindPatchFor(mustFP(t, "01"))
	require.True(t, ok)
	require.Equal(t, mustFP(t, "02"), entry.NewCKey)

	_, ok = parsed.FindPatchFor(mustFP(t, "ff"))
	require.False(t, ok)
}

func TestBuildPatchChainFollowsLinearWalk(t *testing.T) {
	a := &Archive{
		Version: 2, FileKeySize: 16, OldKeySize: 16, PatchKeySize: 16, BlockSizeBits: 16,
		Entries: []Entry{
			{OldCKey: mustFP(t, "01"), NewCKey: mustFP(t, "02"), PatchEKey: mustFP(t, "a1"), CompressionSpec: "{*=z}"},
			{OldCKey: mustFP(t, "02"), NewCKey: mustFP(t, "03"), PatchEKey: mustFP(t, "a2"), CompressionSpec: "{*=z}"},
		},
	}

	chain, ok := a.BuildPatchChain(mustFP(t, "01"), mustFP(t, "03"))
	require.True(t, ok)
	require.Len(t, chain.Steps, 2)
}

func TestBuildPatchChainRejectsCycle(t *testing.T) {
	a := &Archive{
		Version: 2, FileKeySize: 16, OldKeySize: 16, PatchKeySize: 16, BlockSizeBits: 16,
		Entries: []Entry{
			{OldCKey: mustFP(t, "01"), NewCKey: mustFP(t, "02"), PatchEKey: mustFP(t, "a1"), CompressionSpec: "{*=z}"},
			{OldCKey: mustFP(t, "02"), NewCKey: mustFP(t, "01"), PatchEKey: mustFP(t, "a2"), CompressionSpec: "{*=z}"},
		},
	}

	_, ok := a.BuildPatchChain(mustFP(t, "01"), mustFP(t, "ff"))
	require.False(t, ok)
}

func TestBuildPatchChainRejectsMissingLink(t *testing.T) {
	a := &Archive{Version: 2, FileKeySize: 16, OldKeySize: 16, PatchKeySize: 16, BlockSizeBits: 16}
	_, ok := a.BuildPatchChain(mustFP(t, "01"), mustFP(t, "02"))
	require.False(t, ok)
}
