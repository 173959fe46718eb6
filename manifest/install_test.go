package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstallBuildParseRoundTrip(t *testing.T) {
	in := &Install{
		HashSize: 16,
		Entries: []InstallEntry{
			{Path: "a.txt", CKey: mustFP(t, "01"), Size: 10},
			{Path: "b.txt", CKey: mustFP(t, "02"), Size: 20},
			{Path: "c.txt", CKey: mustFP(t, "03"), Size: 30},
		},
		Tags: []InstallTag{
			{Name: "Windows", Type: 1, Bitmask: []byte{0b1010_0000}}, // entries 0, 2
			{Name: "enUS", Type: 2, Bitmask: []byte{0b1100_0000}},   // entries 0, 1
		},
	}

	raw := BuildInstall(in)
	parsed, err := ParseInstall(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 3)
	require.Len(t, parsed.Tags, 2)

	both := parsed.FilesForTags([]string{"Windows", "enUS"})
	require.Len(t, both, 1)
	require.Equal(t, "a.txt", both[0].Path)

	windows := parsed.FilesForTags([]string{"Windows"})
	require.Len(t, windows, 2)
}

func TestInstallFilesForPlatformDelegatesToTags(t *testing.T) {
	in := &Install{
		HashSize: 16,
		Entries: []InstallEntry{
			{Path: "x.dll", CKey: mustFP(t, "01"), Size: 1},
		},
		Tags: []InstallTag{
			{Name: "win64", Type: 1, Bitmask: []byte{0b1000_0000}},
		},
	}
	raw := BuildInstall(in)
	parsed, err := ParseInstall(raw)
	require.NoError(t, err)

	files := parsed.FilesForPlatform("win64")
	require.Len(t, files, 1)
	require.Equal(t, "x.dll", files[0].Path)

	require.Empty(t, parsed.FilesForPlatform("mac"))
}
