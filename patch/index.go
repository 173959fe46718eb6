package patch

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

const minIndexHeaderSize = 14

// BlockDescriptor is one (type, size) pair in a patch index header; the
// block's own bytes are opaque to this core (spec §4.5: "the core only
// locates their bytes").
type BlockDescriptor struct {
	Type uint32
	Size uint32
}

// Index is a parsed patch index header (little-endian, unlike the
// archive/entry formats, matching patch_index/header.rs exactly): a
// preamble, an optional extra-header key, and a list of block
// descriptors whose file offsets are computed cumulatively from
// HeaderSize.
type Index struct {
	HeaderSize uint32
	Version    uint32
	DataSize   uint32
	KeySize    uint8
	KeyData    [16]byte
	ExtraData  []byte
	Blocks     []BlockDescriptor
}

// ParseIndex parses the header format patch_index/header.rs describes.
func ParseIndex(data []byte) (*Index, error) {
	if len(data) < minIndexHeaderSize {
		return nil, cerrors.TruncatedData(minIndexHeaderSize, len(data))
	}
	headerSize := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	dataSize := binary.LittleEndian.Uint32(data[8:12])
	extraHeaderLen := binary.LittleEndian.Uint16(data[12:14])

	if version != 1 {
		return nil, cerrors.InvalidHeader("patch: unsupported patch index version")
	}
	if uint32(len(data)) < headerSize {
		return nil, cerrors.TruncatedData(int(headerSize), len(data))
	}

	pos := 14
	idx := &Index{HeaderSize: headerSize, Version: version, DataSize: dataSize}

	if extraHeaderLen > 0 {
		if pos >= len(data) {
			return nil, cerrors.TruncatedData(pos+1, len(data))
		}
		keySize := data[pos]
		pos++
		idx.KeySize = keySize

		keyBytes := int(keySize)
		if keyBytes > 16 {
			keyBytes = 16
		}
		if pos+keyBytes > len(data) {
			return nil, cerrors.TruncatedData(pos+keyBytes, len(data))
		}
		copy(idx.KeyData[:keyBytes], data[pos:pos+keyBytes])
		pos += int(keySize)

		consumed := uint16(keySize) + 1
		if extraHeaderLen > consumed {
			remaining := int(extraHeaderLen - consumed)
			if pos+remaining > len(data) {
				return nil, cerrors.TruncatedData(pos+remaining, len(data))
			}
			idx.ExtraData = append([]byte(nil), data[pos:pos+remaining]...)
			pos += remaining
		}
	}

	if pos+4 > len(data) {
		return nil, cerrors.TruncatedData(pos+4, len(data))
	}
	blockCount := binary.LittleEndian.Uint32(data[pos:])
	pos += 4

	for i := uint32(0); i < blockCount; i++ {
		if pos+8 > len(data) {
			return nil, cerrors.TruncatedData(pos+8, len(data))
		}
		idx.Blocks = append(idx.Blocks, BlockDescriptor{
			Type: binary.LittleEndian.Uint32(data[pos:]),
			Size: binary.LittleEndian.Uint32(data[pos+4:]),
		})
		pos += 8
	}

	var totalBlockSize uint64
	for _, b := range idx.Blocks {
		totalBlockSize += uint64(b.Size)
	}
	expected := uint64(headerSize) + totalBlockSize
	if uint64(len(data)) < expected {
		return nil, cerrors.TruncatedData(int(expected), len(data))
	}

	return idx, nil
}

// BuildIndex serializes idx back to ParseIndex's wire format.
func BuildIndex(idx *Index) []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint32(out, idx.HeaderSize)
	out = binary.LittleEndian.AppendUint32(out, idx.Version)
	out = binary.LittleEndian.AppendUint32(out, idx.DataSize)

	extraLen := uint16(1)
	if idx.KeySize > 0 || len(idx.ExtraData) > 0 {
		extraLen = 1 + uint16(idx.KeySize) + uint16(len(idx.ExtraData))
	}
	out = binary.LittleEndian.AppendUint16(out, extraLen)

	out = append(out, idx.KeySize)
	if idx.KeySize > 0 {
		out = append(out, idx.KeyData[:idx.KeySize]...)
	}
	out = append(out, idx.ExtraData...)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(idx.Blocks)))
	for _, b := range idx.Blocks {
		out = binary.LittleEndian.AppendUint32(out, b.Type)
		out = binary.LittleEndian.AppendUint32(out, b.Size)
	}
	return out
}

// BlockOffset computes the absolute byte offset where blockIndex's data
// starts: HeaderSize plus the sum of every preceding block's size.
func (idx *Index) BlockOffset(blockIndex int) uint64 {
	offset := uint64(idx.HeaderSize)
	for _, b := range idx.Blocks[:blockIndex] {
		offset += uint64(b.Size)
	}
	return offset
}
