package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/cascette-go/fingerprint"
)

func mustDiskFP(t *testing.T, hex string) fingerprint.Fingerprint {
	t.Helper()
	for len(hex) < 32 {
		hex += "0"
	}
	fp, err := fingerprint.FromHex(hex)
	require.NoError(t, err)
	return fp
}

func TestDiskWriteHasOpenSize(t *testing.T) {
	root := t.TempDir()
	d := NewDisk(root, "tpr/wow")
	k := mustDiskFP(t, "abcd")

	require.False(t, d.Has(k))

	content := []byte("blte payload bytes")
	require.NoError(t, d.Write(k, bytes.NewReader(content)))

	require.True(t, d.Has(k))

	size, ok := d.Size(k)
	require.True(t, ok)
	require.Equal(t, int64(len(content)), size)

	f, err := d.Open(k)
	require.NoError(t, err)
	defer f.Close()
	got := make([]byte, len(content))
	_, err = f.Read(got)
	require.NoError(t, err)
	require.Equal(t, content, got)

	hex := k.String()
	expectedPath := filepath.Join(root, "tpr/wow", hex[0:2], hex[2:4], hex)
	_, err = os.Stat(expectedPath)
	require.NoError(t, err)
}

func TestDiskWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	d := NewDisk(root, "tpr/wow")
	k := mustDiskFP(t, "ff")
	require.NoError(t, d.Write(k, bytes.NewReader([]byte("x"))))

	hex := k.String()
	dir := filepath.Join(root, "tpr/wow", hex[0:2], hex[2:4])
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, hex, entries[0].Name())
}

func TestDiskClearRemovesBlobs(t *testing.T) {
	root := t.TempDir()
	d := NewDisk(root, "tpr/wow")
	k := mustDiskFP(t, "11")
	require.NoError(t, d.Write(k, bytes.NewReader([]byte("y"))))
	require.True(t, d.Has(k))

	require.NoError(t, d.Clear())
	require.False(t, d.Has(k))
}

func TestResidencyMarker(t *testing.T) {
	root := t.TempDir()
	_, ok, err := ReadResidency(root)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, WriteResidency(root, &Residency{ClaimedAtUnix: 1234, ToolVersion: "test-1"}))

	r, ok, err := ReadResidency(root)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1234), r.ClaimedAtUnix)
	require.Equal(t, "test-1", r.ToolVersion)
}
