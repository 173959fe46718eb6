package manifest

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// InstallEntry is one file the install manifest knows about (spec §4.4.2).
type InstallEntry struct {
	Path string
	CKey fingerprint.Fingerprint
	Size uint32
}

// InstallTag is a named bitmask over the entry index (e.g. a platform,
// locale, or feature tag); bit i set means entry i carries this tag.
type InstallTag struct {
	Name    string
	Type    uint16
	Bitmask []byte
}

func (t InstallTag) has(entryIndex int) bool {
	byteIdx := entryIndex / 8
	if byteIdx >= len(t.Bitmask) {
		return false
	}
	bit := byte(0x80) >> uint(entryIndex%8)
	return t.Bitmask[byteIdx]&bit != 0
}

// Install is the parsed install manifest: the file list and the tags that
// select subsets of it (spec §4.4.2).
type Install struct {
	HashSize int
	Entries  []InstallEntry
	Tags     []InstallTag
}

// FilesForTags returns every entry carrying all of the given tag names
// (spec §4.4.2, "AND semantics").
func (in *Install) FilesForTags(tags []string) []InstallEntry {
	selected := make([]InstallTag, 0, len(tags))
	for _, name := range tags {
		for _, t := range in.Tags {
			if t.Name == name {
				selected = append(selected, t)
				break
			}
		}
	}
	if len(selected) == 0 {
		return nil
	}

	var out []InstallEntry
	for i, e := range in.Entries {
		all := true
		for _, t := range selected {
			if !t.has(i) {
				all = false
				break
			}
		}
		if all {
			out = append(out, e)
		}
	}
	return out
}

// FilesForPlatform returns every entry tagged with the given platform
// identifier; platform tags are ordinary tags by a conventional name.
func (in *Install) FilesForPlatform(platform string) []InstallEntry {
	return in.FilesForTags([]string{platform})
}

// ParseInstall parses an install manifest: header "IN" | version(u8) |
// hash_size(u8) | num_tags(u16 BE) | num_entries(u32 BE), followed by the
// tag table then the entry table.
func ParseInstall(data []byte) (*Install, error) {
	if len(data) < 10 || data[0] != 'I' || data[1] != 'N' {
		return nil, cerrors.InvalidMagic(data)
	}
	hashSize := int(data[3])
	numTags := binary.BigEndian.Uint16(data[4:6])
	numEntries := binary.BigEndian.Uint32(data[6:10])
	off := 10

	in := &Install{HashSize: hashSize}
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
		in.Tags = append(in.Tags, InstallTag{Name: name, Type: typ, Bitmask: mask})
	}

	for i := uint32(0); i < numEntries; i++ {
		path, next, err := readCString(data, off)
		if err != nil {
			return nil, err
		}
		off = next
		if len(data) < off+hashSize+4 {
			return nil, cerrors.TruncatedData(off+hashSize+4, len(data))
		}
		key, err := fingerprint.FromBytes(padTo16(data[off : off+hashSize]))
		if err != nil {
			return nil, err
		}
		off += hashSize
		size := binary.BigEndian.Uint32(data[off:])
		off += 4
		in.Entries = append(in.Entries, InstallEntry{Path: path, CKey: key, Size: size})
	}
	return in, nil
}

// BuildInstall serializes in back to ParseInstall's wire format.
func BuildInstall(in *Install) []byte {
	var out []byte
	out = append(out, 'I', 'N', 1, byte(in.HashSize))
	out = binary.BigEndian.AppendUint16(out, uint16(len(in.Tags)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(in.Entries)))

	for _, t := range in.Tags {
		out = append(out, t.Name...)
		out = append(out, 0)
		out = binary.BigEndian.AppendUint16(out, t.Type)
		out = append(out, t.Bitmask...)
	}
	for _, e := range in.Entries {
		out = append(out, e.Path...)
		out = append(out, 0)
		out = append(out, e.CKey.Bytes()[:in.HashSize]...)
		out = binary.BigEndian.AppendUint32(out, e.Size)
	}
	return out
}

func readCString(data []byte, off int) (string, int, error) {
	start := off
	for off < len(data) && data[off] != 0 {
		off++
	}
	if off >= len(data) {
		return "", 0, cerrors.TruncatedData(off+1, len(data))
	}
	return string(data[start:off]), off + 1, nil
}

func padTo16(b []byte) []byte {
	if len(b) >= fingerprint.Size {
		return b[:fingerprint.Size]
	}
	out := make([]byte, fingerprint.Size)
	copy(out, b)
	return out
}
