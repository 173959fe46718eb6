// Package archive implements CDN archive blobs and their binary indexes
// (spec §3.2, §4.2): a concatenation of BLTE files at arbitrary offsets,
// opened either as a memory-mapped region or backed by thread-safe
// positional file reads, plus the footer-anchored index format that maps an
// encoding key to its (offset, size) within the blob.
//
// Grounded on the teacher's bucketteer/read.go, which opens large
// append-only files through golang.org/x/exp/mmap and falls back to
// positional os.File reads, and on compactindexsized/query.go's
// io.ReaderAt-based bucket lookups.
package archive

import (
	"fmt"
	"math/bits"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/exp/mmap"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

// log follows the teacher's store/store.go convention of a single
// package-scoped named logger rather than a passed-in dependency.
var log = logging.Logger("archive")

// mmapMax32 and mmapMax64 are the memory-map size ceilings from spec §4.2,
// chosen to leave virtual-address headroom on 32-bit address spaces.
const (
	mmapMax32 = 1536 * 1024 * 1024               // 1.5 GiB
	mmapMax64 = 128 * 1024 * 1024 * 1024          // 128 GiB
)

// mmapMax returns the platform-appropriate memory-map ceiling.
func mmapMax() int64 {
	if bits.UintSize == 32 {
		return mmapMax32
	}
	return mmapMax64
}

// Reader serves positional reads into an archive blob. It owns either a
// memory mapping or a plain file handle; callers never see the raw handle,
// only ReadAt/Prefetch (spec §3.5, "archive readers own either a memory
// mapping or an open file handle... callers never see raw handles").
type Reader struct {
	path      string
	size      int64
	mmapped   bool
	mm        *mmap.ReaderAt
	file      *os.File
}

// Open opens the archive blob at path, memory-mapping it when its size is
// at or below the platform ceiling and falling back to positional file I/O
// above it (spec §4.2).
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, cerrors.IOError(fmt.Errorf("archive: stat %s: %w", path, err))
	}
	size := info.Size()

	if size <= mmapMax() {
		mm, err := mmap.Open(path)
		if err != nil {
			return nil, cerrors.IOError(fmt.Errorf("archive: mmap open %s: %w", path, err))
		}
		log.Debugw("opened archive", "path", path, "size", size, "mmapped", true)
		return &Reader{path: path, size: size, mmapped: true, mm: mm}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.IOError(fmt.Errorf("archive: open %s: %w", path, err))
	}
	adviseRandom(f.Fd())
	log.Debugw("opened archive", "path", path, "size", size, "mmapped", false)
	return &Reader{path: path, size: size, file: f}, nil
}

// Size reports the archive blob's total byte length.
func (r *Reader) Size() int64 { return r.size }

// IsMemoryMapped reports whether this reader serves reads from a memory
// mapping rather than positional file I/O.
func (r *Reader) IsMemoryMapped() bool { return r.mmapped }

// ReadAt reads len(p) bytes starting at off. It is safe to call
// concurrently from multiple goroutines on the same Reader: the
// memory-mapped path is naturally shareable, and the file path uses
// os.File.ReadAt, which does not move a shared seek cursor (spec §4.2).
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if r.mmapped {
		return r.mm.ReadAt(p, off)
	}
	return r.file.ReadAt(p, off)
}

// ReadRange reads exactly size bytes at offset off, a convenience wrapper
// around ReadAt matching spec §4.2's `read_at(offset, len) -> bytes`.
func (r *Reader) ReadRange(off int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, off)
	if n < size {
		return nil, cerrors.TruncatedData(size, n)
	}
	if err != nil {
		return nil, cerrors.IOError(err)
	}
	return buf, nil
}

// SectionReader returns an io.ReaderAt-compatible stream scoped to
// [off, off+size), matching spec §4.2's `reader_at(offset, len) -> stream`.
func (r *Reader) SectionReader(off int64, size int64) *SectionReaderAt {
	return &SectionReaderAt{r: r, base: off, limit: off + size}
}

// Prefetch advisorily warms the page cache for [off, off+size). Failures
// are swallowed: prefetch must never surface as an error (spec §4.2).
func (r *Reader) Prefetch(off int64, size int) {
	if r.mmapped || size <= 0 {
		return
	}
	buf := make([]byte, 1)
	end := off + int64(size)
	const stride = 4096
	for p := off; p < end; p += stride {
		_, _ = r.file.ReadAt(buf, p)
	}
}

// Close releases the underlying mapping or file handle.
func (r *Reader) Close() error {
	if r.mmapped {
		return r.mm.Close()
	}
	return r.file.Close()
}

type SectionReaderAt struct {
	r     *Reader
	base  int64
	limit int64
}

func (s *SectionReaderAt) ReadAt(p []byte, off int64) (int, error) {
	abs := s.base + off
	if abs >= s.limit {
		return 0, fmt.Errorf("archive: read past section end")
	}
	if abs+int64(len(p)) > s.limit {
		p = p[:s.limit-abs]
	}
	return s.r.ReadAt(p, abs)
}
