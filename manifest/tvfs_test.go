package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/cascette-go/fingerprint"
)

func ptrFP(fp fingerprint.Fingerprint) *fingerprint.Fingerprint { return &fp }

func TestTVFSBuildParseRoundTrip(t *testing.T) {
	files := []TVFSFile{
		{
			Path: "Data/file1.blp",
			TVFSEntry: TVFSEntry{
				EKey:        mustFP(t, "01"),
				EncodedSize: 100,
				ContentSize: 90,
				ContentKey:  ptrFP(mustFP(t, "11")),
			},
		},
		{
			Path: "Data/sub/file2.blp",
			TVFSEntry: TVFSEntry{
				EKey:        mustFP(t, "02"),
				EncodedSize: 200,
				ContentSize: 180,
				ContentKey:  ptrFP(mustFP(t, "12")),
			},
		},
	}

	tv := NewTVFS(files, TVFSIncludeCKey, nil)
	raw := BuildTVFS(tv)

	parsed, err := ParseTVFS(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 2)

	entry, ok := parsed.ResolvePath("Data/file1.blp")
	require.True(t, ok)
	require.Equal(t, uint32(100), entry.EncodedSize)
	require.Equal(t, uint32(90), entry.ContentSize)
	require.NotNil(t, entry.ContentKey)
	require.Equal(t, mustFP(t, "11"), *entry.ContentKey)

	entry2, ok := parsed.ResolvePath("Data/sub/file2.blp")
	require.True(t, ok)
	require.Equal(t, uint32(200), entry2.EncodedSize)

	_, ok = parsed.ResolvePath("nonexistent")
	require.False(t, ok)
}

func TestTVFSWithEncodingSpecFlag(t *testing.T) {
	idx0 := uint32(0)
	files := []TVFSFile{
		{
			Path: "a.txt",
			TVFSEntry: TVFSEntry{
				EKey:        mustFP(t, "aa"),
				EncodedSize: 10,
				ContentSize: 10,
				ESpecIndex:  &idx0,
			},
		},
	}
	tv := NewTVFS(files, TVFSEncodingSpec, []string{"z"})
	raw := BuildTVFS(tv)

	parsed, err := ParseTVFS(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"z"}, parsed.ESpecs)

	entry, ok := parsed.ResolvePath("a.txt")
	require.True(t, ok)
	require.NotNil(t, entry.ESpecIndex)
	require.Equal(t, uint32(0), *entry.ESpecIndex)
}
