// Package cache implements the value cache that sits between the archive/
// manifest readers and the network (spec §4.3): a sharded, size-bounded,
// zero-copy in-memory cache keyed by encoding key (each shard guards its map
// with a read-write mutex, so reads take a shard read lock; the cache is not
// lock-free), a two-level hex-prefix
// on-disk cache, and a progressive chunked reader for multi-megabyte blobs.
//
// Grounded on huge-cache/cache.go's typed-wrapper-over-a-concurrent-map
// idiom and on range-cache/range-cache.go's double-checked-locking fetch
// coalescing, generalized from byte ranges to whole EKey-addressed values
// and from bigcache's built-in LRU to the access-count/age eviction score
// spec §4.3.1 requires.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpcpool/cascette-go/fingerprint"
)

// Clock is a monotonic nanosecond clock, matching spec §6.3's Clock
// provider contract. Used only by the in-memory cache's eviction score.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixNano() }

// numShards bounds the critical section of any single Get/Put to one
// shard's lock, per spec §4.3.1 ("no critical section longer than a
// single map shard"). A power of two so shardFor can mask instead of mod.
const numShards = 32

type entry struct {
	value      []byte
	lastAccess atomic.Int64
	accessCount atomic.Uint64
	size       int
}

type shard struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]*entry
}

// Memory is the in-memory, size-bounded EKey value cache of spec §4.3.1.
// Values are immutable once inserted; Get returns the same underlying byte
// slice across repeated hits (zero-copy, invariant 7), never a copy.
type Memory struct {
	shards [numShards]*shard
	clock  Clock

	budget   int64
	occupied atomic.Int64

	hits    atomic.Uint64
	misses  atomic.Uint64
	entries atomic.Int64

	evicting atomic.Bool
}

// NewMemory builds an in-memory cache bounded to budget bytes. A zero or
// negative budget means unbounded (eviction never triggers).
func NewMemory(budget int64) *Memory {
	return NewMemoryWithClock(budget, systemClock)
}

// NewMemoryWithClock is NewMemory with an injectable clock, for
// deterministic eviction-score tests.
func NewMemoryWithClock(budget int64, clock Clock) *Memory {
	m := &Memory{clock: clock, budget: budget}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[fingerprint.Fingerprint]*entry)}
	}
	return m
}

func (m *Memory) shardFor(k fingerprint.Fingerprint) *shard {
	// xxhash-style cheap fold over the fingerprint's first 8 bytes (the key
	// is already a content hash, so no further mixing is needed to spread
	// across shards evenly).
	var h uint64
	for _, b := range k[:8] {
		h = h<<8 | uint64(b)
	}
	return m.shards[h&(numShards-1)]
}

// Get returns the cached value for k, updating its access_count and
// last_access atomically, without ever copying the underlying bytes.
func (m *Memory) Get(k fingerprint.Fingerprint) ([]byte, bool) {
	s := m.shardFor(k)
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	e.accessCount.Add(1)
	e.lastAccess.Store(m.clock())
	m.hits.Add(1)
	return e.value, true
}

// Put inserts value under k, evicting lower-scored entries first if the
// insert would exceed the configured budget. Put is a no-op if k is
// already present (content-addressed values never change under the same
// key).
func (m *Memory) Put(k fingerprint.Fingerprint, value []byte) {
	s := m.shardFor(k)
	s.mu.Lock()
	if _, exists := s.entries[k]; exists {
		s.mu.Unlock()
		return
	}
	e := &entry{value: value, size: len(value)}
	e.lastAccess.Store(m.clock())
	s.entries[k] = e
	s.mu.Unlock()

	m.entries.Add(1)
	m.occupied.Add(int64(len(value)))

	if m.budget > 0 && m.occupied.Load() > m.budget {
		m.evict()
	}
}

// evictionCandidate is a snapshot of one entry's eviction-score inputs,
// taken without holding a shard lock across the whole scan (spec §4.3.1:
// "eviction is opportunistic ... never blocks readers").
type evictionCandidate struct {
	key        fingerprint.Fingerprint
	score      float64
	size       int
}

// evict scores every entry by access_count/(1+age_seconds) and deletes the
// lowest-scoring ones, ties broken by smaller EKey, until occupied space is
// back at or under budget. At most one goroutine evicts at a time; a
// concurrent Put that also crossed the budget simply skips its own evict
// call (evictionmonotonicity still holds since the running evict sees the
// latest occupied total each iteration).
func (m *Memory) evict() {
	if !m.evicting.CompareAndSwap(false, true) {
		return
	}
	defer m.evicting.Store(false)

	now := m.clock()
	var candidates []evictionCandidate
	for _, s := range m.shards {
		s.mu.RLock()
		for k, e := range s.entries {
			ageSeconds := float64(now-e.lastAccess.Load()) / 1e9
			if ageSeconds < 0 {
				ageSeconds = 0
			}
			score := float64(e.accessCount.Load()) / (1 + ageSeconds)
			candidates = append(candidates, evictionCandidate{key: k, score: score, size: e.size})
		}
		s.mu.RUnlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].key.Less(candidates[j].key)
	})

	for _, c := range candidates {
		if m.occupied.Load() <= m.budget {
			return
		}
		s := m.shardFor(c.key)
		s.mu.Lock()
		if e, ok := s.entries[c.key]; ok {
			delete(s.entries, c.key)
			m.occupied.Add(-int64(e.size))
			m.entries.Add(-1)
		}
		s.mu.Unlock()
	}
}

// Stats is the point-in-time snapshot of spec §4.3.1's monotonic counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int64
	Bytes   int64
	HitRate float64
}

// Stats returns a snapshot of the cache's hit/miss/occupancy counters.
func (m *Memory) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Entries: m.entries.Load(),
		Bytes:   m.occupied.Load(),
		HitRate: rate,
	}
}
