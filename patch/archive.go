// Package patch implements the patch archive, patch index, and ZBSDIFF1
// binary-diff formats (spec §4.5): incremental-update metadata sitting
// above the archive/encoding layers. Grounded on
// original_source/crates/cascette-formats/src/patch_archive/mod.rs and
// src/patch_index/header.rs, ported to this core's error and fingerprint
// conventions.
package patch

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

const maxChainDepth = 10

// Entry is one patch archive row: a transition from an old content key to
// a new one, via the encoding key of the patch blob itself.
type Entry struct {
	OldCKey         fingerprint.Fingerprint
	NewCKey         fingerprint.Fingerprint
	PatchEKey       fingerprint.Fingerprint
	CompressionSpec string
	AdditionalData  []byte
}

// Archive is a parsed patch archive (spec §4.5): big-endian header,
// little-endian entries (matching patch_archive/mod.rs's BinWrite, which
// writes the header big-endian but entries little-endian).
type Archive struct {
	Version       uint8
	FileKeySize   int
	OldKeySize    int
	PatchKeySize  int
	BlockSizeBits uint8
	Flags         uint8
	Entries       []Entry
}

// ParseArchive parses the "PA" header format.
func ParseArchive(data []byte) (*Archive, error) {
	if len(data) < 10 || data[0] != 'P' || data[1] != 'A' {
		return nil, cerrors.InvalidMagic(data)
	}
	a := &Archive{
		Version:       data[2],
		FileKeySize:   int(data[3]),
		OldKeySize:    int(data[4]),
		PatchKeySize:  int(data[5]),
		BlockSizeBits: data[6],
	}
	blockCount := binary.BigEndian.Uint16(data[7:9])
	a.Flags = data[9]

	off := 10
	for i := uint16(0); i < blockCount; i++ {
		entry, next, err := parseEntry(data, off, a.OldKeySize, a.FileKeySize, a.PatchKeySize)
		if err != nil {
			return nil, err
		}
		a.Entries = append(a.Entries, entry)
		off = next
	}
	return a, nil
}

func parseEntry(data []byte, off, oldKeySize, newKeySize, patchKeySize int) (Entry, int, error) {
	need := oldKeySize + newKeySize + patchKeySize
	if len(data) < off+need {
		return Entry{}, 0, cerrors.TruncatedData(off+need, len(data))
	}
	oldCKey, err := fingerprint.FromBytes(padTo16(data[off : off+oldKeySize]))
	if err != nil {
		return Entry{}, 0, err
	}
	off += oldKeySize
	newCKey, err := fingerprint.FromBytes(padTo16(data[off : off+newKeySize]))
	if err != nil {
		return Entry{}, 0, err
	}
	off += newKeySize
	patchEKey, err := fingerprint.FromBytes(padTo16(data[off : off+patchKeySize]))
	if err != nil {
		return Entry{}, 0, err
	}
	off += patchKeySize

	start := off
	for off < len(data) && data[off] != 0 {
		off++
	}
	if off >= len(data) {
		return Entry{}, 0, cerrors.TruncatedData(off+1, len(data))
	}
	spec := string(data[start:off])
	off++

	return Entry{OldCKey: oldCKey, NewCKey: newCKey, PatchEKey: patchEKey, CompressionSpec: spec}, off, nil
}

func padTo16(b []byte) []byte {
	if len(b) >= fingerprint.Size {
		return b[:fingerprint.Size]
	}
	out := make([]byte, fingerprint.Size)
	copy(out, b)
	return out
}

// BuildArchive serializes a back to ParseArchive's wire format.
func BuildArchive(a *Archive) []byte {
	var out []byte
	out = append(out, 'P', 'A', a.Version, byte(a.FileKeySize), byte(a.OldKeySize), byte(a.PatchKeySize), a.BlockSizeBits)
	out = binary.BigEndian.AppendUint16(out, uint16(len(a.Entries)))
	out = append(out, a.Flags)

	for _, e := range a.Entries {
		out = append(out, e.OldCKey.Bytes()[:a.OldKeySize]...)
		out = append(out, e.NewCKey.Bytes()[:a.FileKeySize]...)
		out = append(out, e.PatchEKey.Bytes()[:a.PatchKeySize]...)
		out = append(out, e.CompressionSpec...)
		out = append(out, 0)
		out = append(out, e.AdditionalData...)
	}
	return out
}

// FindPatchFor returns the patch entry whose old content key matches.
func (a *Archive) FindPatchFor(oldCKey fingerprint.Fingerprint) (Entry, bool) {
	for _, e := range a.Entries {
		if e.OldCKey == oldCKey {
			return e, true
		}
	}
	return Entry{}, false
}

// Chain is a sequence of patch steps linking a start content key to an end
// content key.
type Chain struct {
	Steps    []Entry
	StartKey fingerprint.Fingerprint
	EndKey   fingerprint.Fingerprint
}

// BuildPatchChain walks find_patch_for(current.new) -> next in a bounded
// BFS (really a linear walk, since each content key has at most one
// outgoing patch edge) up to maxChainDepth steps, rejecting cycles via a
// visited set (spec §4.5, "never follow a patch into a node already on
// the current chain").
func (a *Archive) BuildPatchChain(start, end fingerprint.Fingerprint) (*Chain, bool) {
	var steps []Entry
	current := start
	visited := map[fingerprint.Fingerprint]bool{}

	for current != end {
		if visited[current] {
			return nil, false
		}
		visited[current] = true

		entry, ok := a.FindPatchFor(current)
		if !ok {
			return nil, false
		}
		current = entry.NewCKey
		steps = append(steps, entry)

		if len(steps) > maxChainDepth {
			return nil, false
		}
	}
	return &Chain{Steps: steps, StartKey: start, EndKey: end}, true
}
