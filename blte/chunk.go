package blte

import cerrors "github.com/rpcpool/cascette-go/errors"

// chunkView describes one chunk's compressed-payload slice within the raw
// file buffer, independent of whether that slice came from a parsed
// multi-chunk table or was synthesized for a single-chunk file.
type chunkView struct {
	compressed   []byte
	decompressedSize uint32
	checksum     [16]byte
	verify       bool
	index        int
}

// chunkViews derives the list of chunk views for a parsed file, handling
// both the single-chunk (nil header) and multi-chunk cases uniformly.
func chunkViews(raw []byte, header *Header, dataOffset int) ([]chunkView, error) {
	if header == nil {
		payload := raw[dataOffset:]
		return []chunkView{{
			compressed: payload,
			index:      0,
			verify:     false,
		}}, nil
	}

	views := make([]chunkView, len(header.Chunks))
	off := dataOffset
	for i, ci := range header.Chunks {
		end := off + int(ci.CompressedSize)
		if end > len(raw) || end < off {
			return nil, errTruncatedChunk(i, off, end, len(raw))
		}
		views[i] = chunkView{
			compressed:       raw[off:end],
			decompressedSize: ci.DecompressedSize,
			checksum:         ci.Checksum,
			verify:           !ci.verifySkipped(),
			index:            i,
		}
		off = end
	}
	return views, nil
}

func errTruncatedChunk(index, off, end, rawLen int) error {
	return cerrors.TruncatedData(end-off, max(0, rawLen-off))
}
