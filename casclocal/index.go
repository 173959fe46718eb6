// Package casclocal implements the CASC local on-disk storage index
// (spec §3.3): per-bucket binary indexes mapping a truncated (9-byte)
// encoding key to an (archive_number, offset, size) locator inside one of a
// set of large append-only on-disk archive files.
//
// Grounded on compactindexsized/compactindex.go's bucket-hash-then-binary-
// search query strategy (xxHash-driven bucket assignment, sorted in-bucket
// entries) and on cespare/xxhash for the per-record corruption checksum the
// spec calls for ("a checksum over the key+locator").
package casclocal

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// Locator is where a truncated EKey's content lives on local disk.
type Locator struct {
	ArchiveNumber uint16
	Offset        uint32
	Size          uint32
}

// recordSize is the on-disk width of one bucket entry: 9-byte truncated
// EKey, 2-byte archive number, 4-byte offset, 4-byte size, 4-byte checksum.
const recordSize = fingerprint.TruncatedSize + 2 + 4 + 4 + 4

type record struct {
	key      [fingerprint.TruncatedSize]byte
	locator  Locator
	checksum uint32
}

func recordChecksum(key [fingerprint.TruncatedSize]byte, loc Locator) uint32 {
	var buf [recordSize - 4]byte
	copy(buf[:fingerprint.TruncatedSize], key[:])
	off := fingerprint.TruncatedSize
	binary.BigEndian.PutUint16(buf[off:], loc.ArchiveNumber)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], loc.Offset)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], loc.Size)
	return uint32(xxhash.Sum64(buf[:]))
}

func encodeRecord(r record) []byte {
	buf := make([]byte, recordSize)
	copy(buf, r.key[:])
	off := fingerprint.TruncatedSize
	binary.BigEndian.PutUint16(buf[off:], r.locator.ArchiveNumber)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], r.locator.Offset)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.locator.Size)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], r.checksum)
	return buf
}

func decodeRecord(buf []byte) (record, error) {
	if len(buf) != recordSize {
		return record{}, cerrors.TruncatedData(recordSize, len(buf))
	}
	var r record
	copy(r.key[:], buf[:fingerprint.TruncatedSize])
	off := fingerprint.TruncatedSize
	r.locator.ArchiveNumber = binary.BigEndian.Uint16(buf[off:])
	off += 2
	r.locator.Offset = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.locator.Size = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.checksum = binary.BigEndian.Uint32(buf[off:])

	want := recordChecksum(r.key, r.locator)
	if want != r.checksum {
		return record{}, cerrors.ChecksumMismatch(
			binary.BigEndian.AppendUint32(nil, want),
			binary.BigEndian.AppendUint32(nil, r.checksum))
	}
	return r, nil
}

// Bucket is one in-memory, sorted-by-key slice of entries, backing lookup
// within that bucket by binary search.
type Bucket struct {
	records []record
}

// Index is a full local CASC storage index: a fixed number of buckets, each
// independently sorted, keyed by a hash of the truncated EKey.
type Index struct {
	numBuckets uint
	buckets    []Bucket
}

// NewIndex builds an index with numBuckets buckets from the given
// key->locator pairs, bucketing and sorting them the way Parse expects to
// find them on disk.
func NewIndex(numBuckets uint, entries map[[fingerprint.TruncatedSize]byte]Locator) *Index {
	idx := &Index{numBuckets: numBuckets, buckets: make([]Bucket, numBuckets)}
	for key, loc := range entries {
		b := bucketFor(key, numBuckets)
		idx.buckets[b].records = append(idx.buckets[b].records, record{
			key:      key,
			locator:  loc,
			checksum: recordChecksum(key, loc),
		})
	}
	for i := range idx.buckets {
		sort.Slice(idx.buckets[i].records, func(a, c int) bool {
			return lessKey(idx.buckets[i].records[a].key, idx.buckets[i].records[c].key)
		})
	}
	return idx
}

func lessKey(a, b [fingerprint.TruncatedSize]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// bucketFor hashes a truncated EKey into [0, numBuckets) using xxHash64,
// the same global-then-local two-stage hash strategy compactindexsized
// uses for its own bucket assignment.
func bucketFor(key [fingerprint.TruncatedSize]byte, numBuckets uint) uint {
	if numBuckets == 0 {
		return 0
	}
	return uint(xxhash.Sum64(key[:]) % uint64(numBuckets))
}

// Lookup hashes ekey (truncated to 9 bytes) into its bucket and
// binary-searches for an exact match. Record checksums are verified when
// Parse decodes the records, not here.
func (idx *Index) Lookup(ekey fingerprint.Fingerprint) (Locator, bool) {
	key := ekey.Truncated9()
	b := bucketFor(key, idx.numBuckets)
	if b >= uint(len(idx.buckets)) {
		return Locator{}, false
	}
	records := idx.buckets[b].records
	i := sort.Search(len(records), func(i int) bool {
		return !lessKey(records[i].key, key)
	})
	if i < len(records) && records[i].key == key {
		return records[i].locator, true
	}
	return Locator{}, false
}

// Marshal serializes the index as a sequence of length-prefixed buckets:
// each bucket is `record_count(u32 BE) | records...`, in bucket order.
func (idx *Index) Marshal() []byte {
	var out []byte
	for _, b := range idx.buckets {
		var countBuf [4]byte
		binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.records)))
		out = append(out, countBuf[:]...)
		for _, r := range b.records {
			out = append(out, encodeRecord(r)...)
		}
	}
	return out
}

// Parse reads back an index serialized by Marshal, given the same
// numBuckets used to build it (the on-disk format does not self-describe
// the bucket count; callers load it from the accompanying bucket-layout
// metadata, analogous to compactindexsized's header-stored NumBuckets).
func Parse(raw []byte, numBuckets uint) (*Index, error) {
	idx := &Index{numBuckets: numBuckets, buckets: make([]Bucket, numBuckets)}
	off := 0
	for b := uint(0); b < numBuckets; b++ {
		if len(raw) < off+4 {
			return nil, cerrors.TruncatedData(off+4, len(raw))
		}
		count := binary.BigEndian.Uint32(raw[off:])
		off += 4
		records := make([]record, 0, count)
		for i := uint32(0); i < count; i++ {
			if len(raw) < off+recordSize {
				return nil, cerrors.TruncatedData(off+recordSize, len(raw))
			}
			r, err := decodeRecord(raw[off : off+recordSize])
			if err != nil {
				return nil, err
			}
			records = append(records, r)
			off += recordSize
		}
		idx.buckets[b] = Bucket{records: records}
	}
	return idx, nil
}
