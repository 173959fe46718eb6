package manifest

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// SizeEntry is one content or encoding key's installed footprint, plus its
// stored 16-bit key_hash. Grounded on
// original_source/crates/cascette-formats/src/size/entry.rs: key_hash is an
// independent identifier, not a derivation of the key bytes, and is
// validated only against the 0x0000/0xFFFF reserved sentinels (size/
// manifest.rs's add_entry test stores an arbitrary 0x1234 alongside key
// 0xAA...AA and reads it back unchanged).
type SizeEntry struct {
	Key     fingerprint.Fingerprint
	KeyHash uint16
	ESize   uint64 // zero-extended from a variable-width (1-8 byte) field
}

// SizeManifest is the parsed size manifest: per-key installed sizes,
// summed for a total that build tooling cross-checks against the
// manifest's own header total (spec §4.4.2, size.rs's MIN_HEADER_SIZE/
// MIN_V1_HEADER_SIZE constants).
//
// size/header.rs (the exact header byte layout) is absent from the
// filtered original_source pack, so the header below is a self-consistent
// design: a 13-byte base header for V2 (magic(2) + version(1) +
// key_size(1) + esize_bytes(1) + entry_count(u32 BE) + total_size(u32 BE)
// = 13) and a 17-byte V1 header that widens total_size to a u64 (+4 bytes).
type SizeManifest struct {
	Version   uint8
	KeySize   int
	ESizeSize int // width in bytes of each entry's ESize field, 1-8
	TotalSize uint64
	Entries   []SizeEntry
}

const (
	minHeaderSize   = 13
	minV1HeaderSize = 17
)

// ParseSizeManifest parses the wire format BuildSizeManifest produces.
func ParseSizeManifest(data []byte) (*SizeManifest, error) {
	if len(data) < 3 || data[0] != 'D' || data[1] != 'S' {
		return nil, cerrors.InvalidMagic(data)
	}
	version := data[2]
	minLen := minHeaderSize
	if version == 1 {
		minLen = minV1HeaderSize
	}
	if len(data) < minLen {
		return nil, cerrors.TruncatedData(minLen, len(data))
	}

	off := 3
	keySize := int(data[off])
	off++
	esizeSize := int(data[off])
	off++
	if esizeSize < 1 || esizeSize > 8 {
		return nil, cerrors.InvalidHeader("manifest: size esize_bytes out of range")
	}
	entryCount := binary.BigEndian.Uint32(data[off:])
	off += 4

	var totalSize uint64
	if version == 1 {
		totalSize = binary.BigEndian.Uint64(data[off:])
		off += 8
	} else {
		totalSize = uint64(binary.BigEndian.Uint32(data[off:]))
		off += 4
	}

	m := &SizeManifest{Version: version, KeySize: keySize, ESizeSize: esizeSize, TotalSize: totalSize}
	entryLen := keySize + 2 + esizeSize
	for i := uint32(0); i < entryCount; i++ {
		if len(data) < off+entryLen {
			return nil, cerrors.TruncatedData(off+entryLen, len(data))
		}
		key, err := fingerprint.FromBytes(padTo16(data[off : off+keySize]))
		if err != nil {
			return nil, err
		}
		off += keySize

		keyHash := binary.BigEndian.Uint16(data[off:])
		off += 2
		if keyHash == 0x0000 || keyHash == 0xFFFF {
			return nil, cerrors.InvalidHeader("manifest: size entry key_hash is a reserved sentinel")
		}

		esize := beUintN(data[off : off+esizeSize])
		off += esizeSize
		m.Entries = append(m.Entries, SizeEntry{Key: key, KeyHash: keyHash, ESize: esize})
	}
	return m, nil
}

// Validate reports whether the sum of per-entry sizes matches the
// manifest's declared total, per size/manifest.rs's own cross-check.
func (m *SizeManifest) Validate() error {
	var sum uint64
	for _, e := range m.Entries {
		sum += e.ESize
	}
	if sum != m.TotalSize {
		return cerrors.FooterIntegrity("manifest: size manifest total does not match summed entries")
	}
	return nil
}

// BuildSizeManifest serializes m to ParseSizeManifest's wire format.
func BuildSizeManifest(m *SizeManifest) []byte {
	var out []byte
	out = append(out, 'D', 'S', m.Version, byte(m.KeySize), byte(m.ESizeSize))
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Entries)))
	if m.Version == 1 {
		out = binary.BigEndian.AppendUint64(out, m.TotalSize)
	} else {
		out = binary.BigEndian.AppendUint32(out, uint32(m.TotalSize))
	}

	for _, e := range m.Entries {
		out = append(out, e.Key.Bytes()[:m.KeySize]...)
		out = binary.BigEndian.AppendUint16(out, e.KeyHash)
		out = append(out, putBEUintN(e.ESize, m.ESizeSize)...)
	}
	return out
}
