package patch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexBuildParseRoundTripAndBlockOffset(t *testing.T) {
	idx := &Index{
		HeaderSize: 43,
		Version:    1,
		DataSize:   1000,
		Blocks: []BlockDescriptor{
			{Type: 1, Size: 7},
			{Type: 2, Size: 100},
		},
	}
	raw := BuildIndex(idx)
	// Pad the data out so total-size validation is satisfied.
	data := append(raw, make([]byte, 1000-len(raw))...)

	parsed, err := ParseIndex(data)
	require.NoError(t, err)
	require.Equal(t, uint32(43), parsed.HeaderSize)
	require.Len(t, parsed.Blocks, 2)

	require.Equal(t, uint64(43), parsed.BlockOffset(0))
	require.Equal(t, uint64(50), parsed.BlockOffset(1))
}

func TestIndexRejectsUnsupportedVersion(t *testing.T) {
	data := make([]byte, 100)
	data[0] = 43
	data[4] = 2 // version 2, unsupported
	_, err := ParseIndex(data)
	require.Error(t, err)
}

func TestIndexRejectsTruncatedData(t *testing.T) {
	idx := &Index{HeaderSize: 43, Version: 1, DataSize: 1000, Blocks: []BlockDescriptor{{Type: 1, Size: 500}}}
	raw := BuildIndex(idx)
	_, err := ParseIndex(raw) // no trailing block bytes appended
	require.Error(t, err)
}
