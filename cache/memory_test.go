package cache

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

func TestMemoryGetPutZeroCopy(t *testing.T) {
	m := NewMemory(0)
	k := mustFP(t, "aa")
	v := []byte("hello world")
	m.Put(k, v)

	got1, ok := m.Get(k)
	require.True(t, ok)
	got2, ok := m.Get(k)
	require.True(t, ok)

	// Invariant 7: two successive hits return refs to the same buffer.
	require.Equal(t, &got1[0], &got2[0])
	require.Equal(t, v, got1)
}

func TestMemoryMissIncrementsStats(t *testing.T) {
	m := NewMemory(0)
	_, ok := m.Get(mustFP(t, "bb"))
	require.False(t, ok)

	stats := m.Stats()
	require.Equal(t, uint64(0), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestMemoryEvictionRespectsBudget(t *testing.T) {
	now := int64(1000)
	clock := func() int64 { return now }
	m := NewMemoryWithClock(10, clock)

	m.Put(mustFP(t, "01"), make([]byte, 4))
	m.Put(mustFP(t, "02"), make([]byte, 4))
	// Access the first entry repeatedly so it scores higher and survives.
	m.Get(mustFP(t, "01"))
	m.Get(mustFP(t, "01"))

	// This insert pushes occupied space to 12 > budget 10, triggering eviction.
	m.Put(mustFP(t, "03"), make([]byte, 4))

	stats := m.Stats()
	require.LessOrEqual(t, stats.Bytes, int64(10))

	// The never-accessed, lower-scoring key should be the one evicted.
	_, ok := m.Get(mustFP(t, "01"))
	require.True(t, ok)
}

func TestMemoryPutIsIdempotentForSameKey(t *testing.T) {
	m := NewMemory(0)
	k := mustFP(t, "cc")
	m.Put(k, []byte("first"))
	m.Put(k, []byte("second"))

	got, ok := m.Get(k)
	require.True(t, ok)
	require.Equal(t, []byte("first"), got)
}

func TestMemoryHitRate(t *testing.T) {
	m := NewMemory(0)
	k := mustFP(t, "dd")
	m.Put(k, []byte("x"))

	m.Get(k)
	m.Get(k)
	m.Get(mustFP(t, "ee"))

	stats := m.Stats()
	require.Equal(t, uint64(2), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)
}
