package blte

import (
	"bytes"
	"fmt"

	ccrypto "github.com/rpcpool/cascette-go/crypto"
)

// File is a parsed BLTE container. It owns the raw input buffer passed to
// Parse and never copies chunk payloads until Decode is called, so parsing
// a large archive-resident blob stays O(1) in allocation (spec §3.6).
type File struct {
	raw        []byte
	header     *Header
	dataOffset int
}

// Parse validates a BLTE file's header and chunk table without decoding any
// chunk payload. It takes ownership of raw: callers must not mutate it
// afterward.
func Parse(raw []byte) (*File, error) {
	header, dataOffset, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	return &File{raw: raw, header: header, dataOffset: dataOffset}, nil
}

// ChunkCount reports how many chunks this file has, always 1 for a
// single-chunk (no-header) file.
func (f *File) ChunkCount() int {
	if f.header == nil {
		return 1
	}
	return len(f.header.Chunks)
}

// Header returns the parsed multi-chunk header, or nil for a single-chunk
// file.
func (f *File) Header() *Header {
	return f.header
}

// Convention reports which header-offset interpretation this file was
// parsed under ("standard", "archive", or "" for single-chunk files).
func (f *File) Convention() string {
	if f.header == nil {
		return ""
	}
	return f.header.Convention
}

// Decode decompresses and (if needed) decrypts every chunk and returns the
// concatenated plaintext.
func (f *File) Decode(keys ccrypto.Provider) ([]byte, error) {
	views, err := chunkViews(f.raw, f.header, f.dataOffset)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	for _, v := range views {
		if err := decodeChunkInto(&out, v, keys); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// DecodeChunk decompresses/decrypts a single chunk by index, without
// touching the rest of the file. This backs random-access reads into large
// multi-chunk blobs.
func (f *File) DecodeChunk(index int, keys ccrypto.Provider) ([]byte, error) {
	views, err := chunkViews(f.raw, f.header, f.dataOffset)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(views) {
		return nil, fmt.Errorf("blte: chunk index %d out of range [0,%d)", index, len(views))
	}
	var out bytes.Buffer
	if err := decodeChunkInto(&out, views[index], keys); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
