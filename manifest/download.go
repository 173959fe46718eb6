package manifest

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// DownloadEntry is one file the download manifest prioritizes (spec
// §4.4.2). FileSize is a 40-bit big-endian field, zero-extended to uint64.
type DownloadEntry struct {
	EKey     fingerprint.Fingerprint
	FileSize uint64
	Priority uint8
}

// Download is the parsed download manifest: entries (in priority-sorted
// publish order) followed by tag bitmasks over the entry index, the same
// tag shape install.go uses (spec §4.4.2: "entries come before tags in the
// wire format").
type Download struct {
	Version  uint8
	HashSize int
	Entries  []DownloadEntry
	TagTable []InstallTag
}

// Priority returns ekey's download priority (lower values download first).
func (d *Download) Priority(ekey fingerprint.Fingerprint) (uint8, bool) {
	for _, e := range d.Entries {
		if e.EKey == ekey {
			return e.Priority, true
		}
	}
	return 0, false
}

// Tags returns a bitmask over d.TagTable (bit i == 1 means ekey carries
// d.TagTable[i]), matching spec §4.4.2's `tags(ekey) -> bitmask`.
func (d *Download) Tags(ekey fingerprint.Fingerprint) ([]byte, bool) {
	idx := -1
	for i, e := range d.Entries {
		if e.EKey == ekey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	mask := make([]byte, (len(d.TagTable)+7)/8)
	for i, t := range d.TagTable {
		if t.has(idx) {
			mask[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return mask, true
}

// ParseDownload parses a download manifest across its three on-disk
// versions: v1 carries only EKey+size+priority per entry; v2 adds a
// checksum field (dropped here, as the core verifies chunk checksums at
// the BLTE layer instead); v3 widens the header with an extra flags byte.
// All three share the entries-then-tags layout.
func ParseDownload(data []byte) (*Download, error) {
	if len(data) < 3 || data[0] != 'D' || data[1] != 'L' {
		return nil, cerrors.InvalidMagic(data)
	}
	version := data[2]
	off := 3
	hashSize := int(data[off])
	off++
	if version >= 3 {
		off++ // flags byte, unused by any lookup this core exposes
	}
	if len(data) < off+4+2+1 {
		return nil, cerrors.TruncatedData(off+7, len(data))
	}
	numEntries := binary.BigEndian.Uint32(data[off:])
	off += 4
	numTags := binary.BigEndian.Uint16(data[off:])
	off += 2
	hasChecksum := version >= 2 && data[off] != 0
	off++

	d := &Download{Version: version, HashSize: hashSize}
	for i := uint32(0); i < numEntries; i++ {
		entryLen := hashSize + 5 + 1
		if hasChecksum {
			entryLen += 4
		}
		if len(data) < off+entryLen {
			return nil, cerrors.TruncatedData(off+entryLen, len(data))
		}
		ekey, err := fingerprint.FromBytes(padTo16(data[off : off+hashSize]))
		if err != nil {
			return nil, err
		}
		off += hashSize
		size := read40(data[off:])
		off += 5
		if hasChecksum {
			off += 4
		}
		priority := data[off]
		off++
		d.Entries = append(d.Entries, DownloadEntry{EKey: ekey, FileSize: size, Priority: priority})
	}

	bitmaskLen := (int(numEntries) + 7) / 8
	for i := uint16(0); i < numTags; i++ {
		name, next, err := readCString(data, off)
		if err != nil {
			return nil, err
		}
		off = next
		if len(data) < off+2+bitmaskLen {
			return nil, cerrors.TruncatedData(off+2+bitmaskLen, len(data))
		}
		typ := binary.BigEndian.Uint16(data[off:])
		off += 2
		mask := append([]byte(nil), data[off:off+bitmaskLen]...)
		off += bitmaskLen
		d.TagTable = append(d.TagTable, InstallTag{Name: name, Type: typ, Bitmask: mask})
	}
	return d, nil
}

// BuildDownload serializes d back to ParseDownload's wire format, always
// in its own version's shape (no checksum field, since this module never
// populates one).
func BuildDownload(d *Download) []byte {
	var out []byte
	out = append(out, 'D', 'L', d.Version, byte(d.HashSize))
	if d.Version >= 3 {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(d.Entries)))
	out = binary.BigEndian.AppendUint16(out, uint16(len(d.TagTable)))
	out = append(out, 0) // has_checksum = false

	for _, e := range d.Entries {
		out = append(out, e.EKey.Bytes()[:d.HashSize]...)
		out = append(out, put40(e.FileSize)...)
		out = append(out, e.Priority)
	}
	for _, t := range d.TagTable {
		out = append(out, t.Name...)
		out = append(out, 0)
		out = binary.BigEndian.AppendUint16(out, t.Type)
		out = append(out, t.Bitmask...)
	}
	return out
}

func read40(b []byte) uint64 {
	var v uint64
	for i := 0; i < 5; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func put40(v uint64) []byte {
	out := make([]byte, 5)
	for i := 4; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
