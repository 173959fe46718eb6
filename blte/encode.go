package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// EncodeOptions controls how Encode lays out a fresh BLTE file. The zero
// value produces a single uncompressed chunk.
type EncodeOptions struct {
	// Mode selects the compression applied to every chunk. Only ModeNone,
	// ModeZlib and ModeLZ4 are accepted: BLTE writers never emit encrypted
	// or recursive chunks (spec §9, "Archive writers").
	Mode Mode
	// ChunkSize splits content into chunks of this decompressed size. Zero
	// (or a size covering the whole content) produces a single chunk.
	ChunkSize int
}

// Encode builds a fresh BLTE file from content under opts. It never
// preserves original compressed bytes; use EncodeFromChunks to rebuild a
// file byte-exact from existing compressed chunk payloads (spec §9,
// archive reconstruction must not force recompression).
func Encode(content []byte, opts EncodeOptions) ([]byte, error) {
	switch opts.Mode {
	case ModeNone, ModeZlib, ModeLZ4:
	default:
		return nil, fmt.Errorf("blte: encode mode must be N, Z, or 4, got %q", opts.Mode)
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 || chunkSize >= len(content) {
		compressed, err := compressChunk(content, opts.Mode)
		if err != nil {
			return nil, err
		}
		return encodeSingle(compressed), nil
	}

	var chunks [][]byte
	var infos []ChunkInfo
	for off := 0; off < len(content); off += chunkSize {
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		compressed, err := compressChunk(content[off:end], opts.Mode)
		if err != nil {
			return nil, err
		}
		sum := md5.Sum(compressed)
		infos = append(infos, ChunkInfo{
			CompressedSize:   uint32(len(compressed)),
			DecompressedSize: uint32(end - off),
			Checksum:         sum,
		})
		chunks = append(chunks, compressed)
	}
	return encodeMulti(infos, chunks), nil
}

// ChunkSource supplies a pre-encoded chunk's compressed bytes unchanged, so
// an archive rebuild can reuse chunks verbatim instead of recompressing
// them (spec §9).
type ChunkSource struct {
	Compressed       []byte
	DecompressedSize uint32
}

// EncodeFromChunks assembles a multi-chunk BLTE file directly from already
// mode-tagged, compressed chunk payloads, recomputing only the header and
// per-chunk MD5 checksums. This is the path archive rebuilding uses to stay
// byte-exact on chunks that did not change.
func EncodeFromChunks(sources []ChunkSource) []byte {
	if len(sources) == 1 {
		return encodeSingle(sources[0].Compressed)
	}
	infos := make([]ChunkInfo, len(sources))
	chunks := make([][]byte, len(sources))
	for i, s := range sources {
		sum := md5.Sum(s.Compressed)
		infos[i] = ChunkInfo{
			CompressedSize:   uint32(len(s.Compressed)),
			DecompressedSize: s.DecompressedSize,
			Checksum:         sum,
		}
		chunks[i] = s.Compressed
	}
	return encodeMulti(infos, chunks)
}

func compressChunk(data []byte, mode Mode) ([]byte, error) {
	var body bytes.Buffer
	switch mode {
	case ModeNone:
		body.Write(data)
	case ModeZlib:
		w := zlib.NewWriter(&body)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("blte: zlib encode: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("blte: zlib encode: %w", err)
		}
	case ModeLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("blte: lz4 encode: %w", err)
		}
		if n == 0 && len(data) > 0 {
			// Incompressible input: lz4 leaves dst empty, fall back to a
			// raw store within the LZ4 chunk framing is not supported by
			// CompressBlock, so store the chunk uncompressed instead.
			body.Write(data)
			return append([]byte{byte(ModeNone)}, body.Bytes()...), nil
		}
		// Mode 4's payload is prefixed by its own little-endian size header
		// (spec §3.1/§4.1): uncompressed_size | compressed_size, ahead of
		// the raw lz4 block.
		var header [8]byte
		binary.LittleEndian.PutUint32(header[0:4], uint32(len(data)))
		binary.LittleEndian.PutUint32(header[4:8], uint32(n))
		body.Write(header[:])
		body.Write(dst[:n])
	}
	out := make([]byte, 0, 1+body.Len())
	out = append(out, byte(mode))
	out = append(out, body.Bytes()...)
	return out, nil
}

func encodeSingle(compressed []byte) []byte {
	out := make([]byte, 0, preambleSize+len(compressed))
	out = append(out, Magic[:]...)
	out = binary.BigEndian.AppendUint32(out, 0)
	out = append(out, compressed...)
	return out
}

func encodeMulti(infos []ChunkInfo, chunks [][]byte) []byte {
	tableSize := 4 + len(infos)*standardEntryStride

	out := make([]byte, 0, preambleSize+tableSize+sumLens(chunks))
	out = append(out, Magic[:]...)
	// The "standard" convention (spec §4.1): header_size is the chunk
	// table's own size, excluding the 8-byte preamble.
	out = binary.BigEndian.AppendUint32(out, uint32(tableSize))
	out = append(out, flagsStandard)
	out = append(out, byte(len(infos)>>16), byte(len(infos)>>8), byte(len(infos)))
	for _, ci := range infos {
		out = binary.BigEndian.AppendUint32(out, ci.CompressedSize)
		out = binary.BigEndian.AppendUint32(out, ci.DecompressedSize)
		out = append(out, ci.Checksum[:]...)
	}
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func sumLens(chunks [][]byte) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}
