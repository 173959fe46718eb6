package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderOpenAndReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.blob")
	content := make([]byte, 4096)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.IsMemoryMapped())
	require.Equal(t, int64(len(content)), r.Size())

	got, err := r.ReadRange(100, 50)
	require.NoError(t, err)
	require.Equal(t, content[100:150], got)

	sr := r.SectionReader(4000, 96)
	buf := make([]byte, 32)
	n, err := sr.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 32, n)
	require.Equal(t, content[4010:4042], buf)

	// Prefetch must never error or panic.
	r.Prefetch(0, 4096)
}

func TestReaderConcurrentReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.blob")
	content := make([]byte, 65536)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	type result struct {
		off  int64
		n    int
		err  error
		data []byte
	}
	results := make(chan result, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			off := int64(i * 1000)
			buf := make([]byte, 256)
			n, err := r.ReadAt(buf, off)
			results <- result{off: off, n: n, err: err, data: buf}
		}(i)
	}
	for i := 0; i < 8; i++ {
		res := <-results
		require.NoError(t, res.err)
		require.Equal(t, 256, res.n)
		require.Equal(t, content[res.off:res.off+256], res.data)
	}
}
