package cache

import (
	"context"
	"encoding/binary"

	"github.com/allegro/bigcache/v3"
)

// SeqnTracker is the freshness side-table for manifest-like cache entries
// that carry a sequence number (spec §4.3.2: "TTL is applied only to
// manifest-like documents that carry a seqn ... same filename, replace on
// newer seqn"). Content-addressed blobs never go through this type.
//
// Grounded on huge-cache/cache.go's typed bigcache wrapper: a single
// BigCache instance keyed by name, storing an 8-byte big-endian seqn per
// entry.
type SeqnTracker struct {
	cache *bigcache.BigCache
}

// NewSeqnTracker builds a SeqnTracker backed by bigcache using config.
func NewSeqnTracker(ctx context.Context, config bigcache.Config) (*SeqnTracker, error) {
	c, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, err
	}
	return &SeqnTracker{cache: c}, nil
}

// ShouldReplace reports whether a document named name carrying sequence
// number newSeqn is fresher than whatever is currently recorded (or true if
// nothing is recorded yet).
func (t *SeqnTracker) ShouldReplace(name string, newSeqn uint64) bool {
	raw, err := t.cache.Get(name)
	if err != nil || len(raw) != 8 {
		return true
	}
	return newSeqn > binary.BigEndian.Uint64(raw)
}

// RecordSeqn stores newSeqn as the latest known sequence number for name.
func (t *SeqnTracker) RecordSeqn(name string, newSeqn uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], newSeqn)
	return t.cache.Set(name, buf[:])
}
