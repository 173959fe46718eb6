package blte

import (
	"crypto/md5"
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

// Magic is the 4-byte BLTE container signature.
var Magic = [4]byte{'B', 'L', 'T', 'E'}

const (
	// preambleSize is the magic + header_size field width, always present.
	preambleSize = 8
	// standardEntryStride is the per-chunk table entry width for flags 0x0F.
	standardEntryStride = 24
	// extendedEntryStride is the per-chunk table entry width for flags 0x10,
	// which appends 16 bytes of uninterpreted trailing metadata per entry
	// (spec §9, Open Question 2).
	extendedEntryStride = 40
	// extendedTrailerSize is the width of that uninterpreted trailer.
	extendedTrailerSize = 16

	flagsStandard = 0x0F
	flagsExtended = 0x10

	// maxChunkCount bounds parsing against corrupt chunk counts (spec §4.1).
	maxChunkCount = 65536
)

// ChunkInfo is one entry of a multi-chunk BLTE file's chunk table (spec
// §3.5 "Chunk descriptor").
type ChunkInfo struct {
	CompressedSize   uint32
	DecompressedSize uint32
	// Checksum is the MD5 of the chunk's compressed payload. The all-zero
	// value opts out of verification (spec §3.1 invariants).
	Checksum [16]byte
	// Trailer holds the 16 bytes of unspecified per-entry metadata present
	// only when the extended (0x10) chunk-table flag is set. Parse keeps
	// these bytes here without interpreting them; the encoders in this
	// package always write the standard (0x0F) 24-byte table, so the
	// trailer is not written back out.
	Trailer []byte
}

func (ci ChunkInfo) verifySkipped() bool {
	for _, b := range ci.Checksum {
		if b != 0 {
			return false
		}
	}
	return true
}

// Header describes a multi-chunk BLTE file's header. A nil *Header on a
// parsed File means the file is single-chunk (header_size == 0).
type Header struct {
	Flags      byte
	ChunkCount uint32
	Chunks     []ChunkInfo
	// Convention records which header-offset interpretation (spec §4.1)
	// this file was parsed under, purely for diagnostics; it never feeds
	// back into mutating the header.
	Convention string
}

func (h *Header) entryStride() int {
	if h.Flags == flagsExtended {
		return extendedEntryStride
	}
	return standardEntryStride
}

// parseHeader reads the BLTE preamble and, if present, the multi-chunk
// table. It returns the header (nil for single-chunk files) and the byte
// offset at which chunk data begins.
func parseHeader(raw []byte) (*Header, int, error) {
	if len(raw) < preambleSize {
		return nil, 0, cerrors.TruncatedData(preambleSize, len(raw))
	}
	if raw[0] != Magic[0] || raw[1] != Magic[1] || raw[2] != Magic[2] || raw[3] != Magic[3] {
		return nil, 0, cerrors.InvalidMagic(raw[0:4])
	}
	headerSize := binary.BigEndian.Uint32(raw[4:8])
	if headerSize == 0 {
		return nil, preambleSize, nil
	}

	if len(raw) < preambleSize+4 {
		return nil, 0, cerrors.TruncatedData(preambleSize+4, len(raw))
	}
	flags := raw[8]
	if flags != flagsStandard && flags != flagsExtended {
		return nil, 0, cerrors.InvalidHeader("unsupported chunk table flags")
	}
	chunkCount := uint32(raw[9])<<16 | uint32(raw[10])<<8 | uint32(raw[11])
	if chunkCount > maxChunkCount {
		return nil, 0, cerrors.InvalidChunkCount(chunkCount)
	}

	h := &Header{Flags: flags, ChunkCount: chunkCount}
	stride := h.entryStride()
	tableSize := 4 + int(chunkCount)*stride
	if len(raw) < preambleSize+tableSize {
		return nil, 0, cerrors.TruncatedData(preambleSize+tableSize, len(raw))
	}

	h.Chunks = make([]ChunkInfo, chunkCount)
	off := preambleSize + 4
	for i := 0; i < int(chunkCount); i++ {
		entry := raw[off : off+stride]
		ci := ChunkInfo{
			CompressedSize:   binary.BigEndian.Uint32(entry[0:4]),
			DecompressedSize: binary.BigEndian.Uint32(entry[4:8]),
		}
		copy(ci.Checksum[:], entry[8:24])
		if stride == extendedEntryStride {
			ci.Trailer = append([]byte(nil), entry[24:40]...)
		}
		h.Chunks[i] = ci
		off += stride
	}

	dataOffset, convention, err := resolveDataOffset(raw, headerSize, tableSize, h.Chunks)
	if err != nil {
		return nil, 0, err
	}
	h.Convention = convention
	return h, dataOffset, nil
}

// resolveDataOffset implements the header-offset reconciliation contract of
// spec §4.1: structural detection first, MD5 disambiguation only when the
// declared header_size matches neither formula.
func resolveDataOffset(raw []byte, headerSize uint32, tableSize int, chunks []ChunkInfo) (int, string, error) {
	standardOffset := preambleSize + int(headerSize)
	archiveOffset := int(headerSize)

	switch {
	case int(headerSize) == tableSize:
		return standardOffset, "standard", nil
	case int(headerSize) == preambleSize+tableSize:
		return archiveOffset, "archive", nil
	}

	// Ambiguous: fall back to the standard rule, then disambiguate with
	// chunk-0 MD5 verification without mutating anything already parsed.
	if ok := verifyChunk0(raw, standardOffset, chunks); ok {
		return standardOffset, "standard", nil
	}
	if ok := verifyChunk0(raw, archiveOffset, chunks); ok {
		return archiveOffset, "archive", nil
	}
	// Neither candidate verifies; keep the standard interpretation so the
	// caller gets a deterministic (if ultimately invalid) offset and the
	// real failure surfaces from chunk decode/verification downstream.
	return standardOffset, "standard", nil
}

func verifyChunk0(raw []byte, dataOffset int, chunks []ChunkInfo) bool {
	if len(chunks) == 0 {
		return dataOffset <= len(raw)
	}
	c0 := chunks[0]
	end := dataOffset + int(c0.CompressedSize)
	if dataOffset < 0 || end > len(raw) || end < dataOffset {
		return false
	}
	if c0.verifySkipped() {
		return true
	}
	sum := md5.Sum(raw[dataOffset:end])
	return sum == c0.Checksum
}
