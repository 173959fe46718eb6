package archive

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// Footer is the trailing fixed-layout descriptor of a CDN archive index
// (spec §3.2). The field widths it carries — EKeyLength, OffsetBytes,
// SizeBytes, PageSizeKB — parameterize how the preceding record and TOC
// bytes must be interpreted; they are not assumed fixed across products.
type Footer struct {
	// SelfHash is a truncated MD5 over every footer byte from Version
	// through FooterHash (spec §3.2, "self-hash").
	SelfHash        [8]byte
	Version         byte
	EKeyLength      byte
	FooterHashBytes byte
	OffsetBytes     byte
	SizeBytes       byte
	PageSizeKB      byte
	Unused          byte
	ElementCount    uint32
	// FooterHash is a truncated MD5 over the record+TOC page data
	// (spec §3.2, "footer hash"), FooterHashBytes long.
	FooterHash []byte
}

// footerFixedSize is the width of Footer's fields preceding the
// variable-length FooterHash.
const footerFixedSize = 8 + 1 + 1 + 1 + 1 + 1 + 1 + 1 + 4

// Entry is one resolved archive-index record: an encoding key's location
// within the archive blob.
type Entry struct {
	EKey   fingerprint.Fingerprint
	Offset uint32
	Size   uint32
}

// Index is a parsed CDN archive index: sorted records plus the table of
// contents that lets lookups skip straight to the containing page.
type Index struct {
	Footer  Footer
	Entries []Entry
	TOC     []fingerprint.Fingerprint
}

func recordStride(f Footer) int {
	return int(f.EKeyLength) + int(f.SizeBytes) + int(f.OffsetBytes)
}

func recordsPerPage(f Footer) int {
	stride := recordStride(f)
	if stride == 0 {
		return 0
	}
	return (int(f.PageSizeKB) * 1024) / stride
}

// peekHashBytes locates the FooterHashBytes field (offset 10 within the
// fixed footer) so Parse can find where the footer begins. The fixed footer
// is followed by FooterHash, whose length is that same field, so each
// candidate length h is tried: the field byte must equal h and the footer's
// self-hash over those bytes must verify.
func peekHashBytes(raw []byte) (int, error) {
	if len(raw) < footerFixedSize {
		return 0, footerIntegrityErr("archive index shorter than footer")
	}
	for h := 0; h <= 0xFF && footerFixedSize+h <= len(raw); h++ {
		start := len(raw) - footerFixedSize - h
		if int(raw[start+10]) != h {
			continue
		}
		sum := md5.Sum(raw[start+8:])
		if bytes.Equal(sum[:8], raw[start:start+8]) {
			return h, nil
		}
	}
	return 0, footerIntegrityErr("archive index footer not found or self-hash mismatch")
}

// Parse parses a byte-exact CDN archive index (spec §4.2 `parse`),
// verifying the footer's self-hash and page-data hash before trusting any
// record.
func Parse(raw []byte) (*Index, error) {
	hashBytes, err := peekHashBytes(raw)
	if err != nil {
		return nil, err
	}
	footerTotal := footerFixedSize + hashBytes
	if len(raw) < footerTotal {
		return nil, footerIntegrityErr("archive index shorter than footer+hash")
	}
	footerStart := len(raw) - footerTotal

	f, err := parseFooter(raw[footerStart:], hashBytes)
	if err != nil {
		return nil, err
	}

	selfHash := md5.Sum(raw[footerStart+8 : footerStart+footerTotal])
	if !bytes.Equal(selfHash[:8], f.SelfHash[:]) {
		return nil, footerIntegrityErr("archive index self-hash mismatch")
	}

	pageData := raw[:footerStart]
	gotHash := md5.Sum(pageData)
	if !bytes.Equal(gotHash[:len(f.FooterHash)], f.FooterHash) {
		return nil, footerIntegrityErr("archive index footer hash mismatch")
	}

	stride := recordStride(f)
	perPage := recordsPerPage(f)
	if stride == 0 || perPage == 0 {
		return nil, footerIntegrityErr("archive index footer declares zero-width records")
	}

	pageSize := int(f.PageSizeKB) * 1024
	numPages := 0
	if f.ElementCount > 0 {
		numPages = (int(f.ElementCount) + perPage - 1) / perPage
	}
	tocSize := numPages * int(f.EKeyLength)
	recordBytesLen := numPages * pageSize
	if len(pageData) != recordBytesLen+tocSize {
		return nil, footerIntegrityErr("archive index size does not match footer's page/TOC prediction")
	}
	recordBytes := pageData[:recordBytesLen]
	tocBytes := pageData[recordBytesLen:]

	// Records are grouped into fixed-size, zero-padded pages (spec §3.2):
	// only the first `perPage` (or fewer, on the last page) records within
	// each page are real, the rest of the page is padding and must not be
	// decoded as spurious entries.
	entries := make([]Entry, 0, f.ElementCount)
	for p := 0; p < numPages; p++ {
		pageStart := p * pageSize
		pageEnd := pageStart + pageSize
		inPage := perPage
		if remaining := int(f.ElementCount) - len(entries); remaining < inPage {
			inPage = remaining
		}
		off := pageStart
		for i := 0; i < inPage; i++ {
			if off+stride > pageEnd {
				return nil, footerIntegrityErr("archive index page too small for its declared records")
			}
			e, err := decodeRecord(recordBytes[off:off+stride], f)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
			off += stride
		}
	}
	if len(entries) != int(f.ElementCount) {
		return nil, footerIntegrityErr(fmt.Sprintf("archive index element_count %d does not match parsed records %d", f.ElementCount, len(entries)))
	}

	toc := make([]fingerprint.Fingerprint, numPages)
	for i := 0; i < numPages; i++ {
		fp, err := fingerprint.FromBytes(padKey(tocBytes[i*int(f.EKeyLength):(i+1)*int(f.EKeyLength)], f.EKeyLength))
		if err != nil {
			return nil, err
		}
		toc[i] = fp
	}

	return &Index{Footer: f, Entries: entries, TOC: toc}, nil
}

func padKey(b []byte, ekeyLen byte) []byte {
	if int(ekeyLen) == fingerprint.Size {
		return b
	}
	out := make([]byte, fingerprint.Size)
	copy(out, b)
	return out
}

func decodeRecord(rec []byte, f Footer) (Entry, error) {
	ekeyRaw := rec[:f.EKeyLength]
	rest := rec[f.EKeyLength:]
	sizeRaw := rest[:f.SizeBytes]
	offsetRaw := rest[f.SizeBytes:]

	fp, err := fingerprint.FromBytes(padKey(ekeyRaw, f.EKeyLength))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		EKey:   fp,
		Size:   beUint(sizeRaw),
		Offset: beUint(offsetRaw),
	}, nil
}

func beUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func putBE(v uint32, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func parseFooter(b []byte, hashBytes int) (Footer, error) {
	var f Footer
	if len(b) < footerFixedSize+hashBytes {
		return f, footerIntegrityErr("truncated footer")
	}
	copy(f.SelfHash[:], b[0:8])
	f.Version = b[8]
	f.EKeyLength = b[9]
	f.FooterHashBytes = b[10]
	f.OffsetBytes = b[11]
	f.SizeBytes = b[12]
	f.PageSizeKB = b[13]
	f.Unused = b[14]
	f.ElementCount = binary.BigEndian.Uint32(b[footerFixedSize-4 : footerFixedSize])
	f.FooterHash = append([]byte(nil), b[footerFixedSize:footerFixedSize+hashBytes]...)
	return f, nil
}

// Find looks up ekey, returning its (offset, size) or ok=false if absent
// (spec §4.2's `find(ekey) -> Option<(offset, size)>`). It binary-searches
// the TOC for the first page whose last key is >= ekey, then
// binary-searches within that page.
func (idx *Index) Find(ekey fingerprint.Fingerprint) (Entry, bool) {
	if len(idx.Entries) == 0 {
		return Entry{}, false
	}
	perPage := recordsPerPage(idx.Footer)
	if perPage == 0 {
		return Entry{}, false
	}

	pageIdx := sort.Search(len(idx.TOC), func(i int) bool {
		return idx.TOC[i].Compare(ekey) >= 0
	})
	if pageIdx == len(idx.TOC) {
		return Entry{}, false
	}

	start := pageIdx * perPage
	end := start + perPage
	if end > len(idx.Entries) {
		end = len(idx.Entries)
	}
	page := idx.Entries[start:end]

	i := sort.Search(len(page), func(i int) bool {
		return page[i].EKey.Compare(ekey) >= 0
	})
	if i < len(page) && page[i].EKey == ekey {
		return page[i], true
	}
	return Entry{}, false
}

// IndexParams configures a freshly built archive index's footer field
// widths (spec §3.2); NewIndex defaults them to the values observed on
// production CDN archives.
type IndexParams struct {
	EKeyLength      byte
	OffsetBytes     byte
	SizeBytes       byte
	PageSizeKB      byte
	FooterHashBytes byte
	Version         byte
}

// DefaultIndexParams mirrors the field widths confirmed against real CDN
// archive index fixtures: 16-byte keys, 4-byte offsets/sizes, 4 KB pages,
// 8-byte footer hash, version 1.
var DefaultIndexParams = IndexParams{
	EKeyLength:      fingerprint.Size,
	OffsetBytes:     4,
	SizeBytes:       4,
	PageSizeKB:      4,
	FooterHashBytes: 8,
	Version:         1,
}

// NewIndex builds a fresh Index from entries sorted by EKey, computing the
// TOC and footer under params (spec §4.2 `build(entries) -> bytes`, applied
// here to produce the Index prior to serialization by Build).
func NewIndex(entries []Entry, params IndexParams) (*Index, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EKey.Less(sorted[j].EKey) })

	f := Footer{
		Version:         params.Version,
		EKeyLength:      params.EKeyLength,
		FooterHashBytes: params.FooterHashBytes,
		OffsetBytes:     params.OffsetBytes,
		SizeBytes:       params.SizeBytes,
		PageSizeKB:      params.PageSizeKB,
		ElementCount:    uint32(len(sorted)),
	}
	perPage := recordsPerPage(f)
	if perPage == 0 {
		return nil, fmt.Errorf("archive: index params yield zero records per page")
	}

	numPages := (len(sorted) + perPage - 1) / perPage
	toc := make([]fingerprint.Fingerprint, 0, numPages)
	for p := 0; p < numPages; p++ {
		end := (p + 1) * perPage
		if end > len(sorted) {
			end = len(sorted)
		}
		toc = append(toc, sorted[end-1].EKey)
	}

	return &Index{Footer: f, Entries: sorted, TOC: toc}, nil
}

// Build serializes idx back into bytes matching spec §4.2's `build`: same
// page size, same footer field widths, same padding as the parsed index it
// was derived from (spec invariant 4, archive index round-trip).
func Build(idx *Index) []byte {
	f := idx.Footer
	perPage := recordsPerPage(f)
	pageSize := int(f.PageSizeKB) * 1024

	var records bytes.Buffer
	for i := 0; i < len(idx.Entries); {
		pageStart := records.Len()
		end := i + perPage
		if end > len(idx.Entries) {
			end = len(idx.Entries)
		}
		for ; i < end; i++ {
			e := idx.Entries[i]
			records.Write(padKey(e.EKey.Bytes(), f.EKeyLength)[:f.EKeyLength])
			records.Write(putBE(e.Size, int(f.SizeBytes)))
			records.Write(putBE(e.Offset, int(f.OffsetBytes)))
		}
		if pad := pageSize - (records.Len() - pageStart); pad > 0 {
			records.Write(make([]byte, pad))
		}
	}
	var toc bytes.Buffer
	for _, t := range idx.TOC {
		toc.Write(padKey(t.Bytes(), f.EKeyLength)[:f.EKeyLength])
	}

	pageData := append(records.Bytes(), toc.Bytes()...)
	hash := md5.Sum(pageData)

	var footerTail bytes.Buffer
	footerTail.WriteByte(f.Version)
	footerTail.WriteByte(f.EKeyLength)
	footerTail.WriteByte(f.FooterHashBytes)
	footerTail.WriteByte(f.OffsetBytes)
	footerTail.WriteByte(f.SizeBytes)
	footerTail.WriteByte(f.PageSizeKB)
	footerTail.WriteByte(f.Unused)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], f.ElementCount)
	footerTail.Write(countBuf[:])
	footerTail.Write(hash[:f.FooterHashBytes])

	selfHash := md5.Sum(footerTail.Bytes())

	out := append([]byte{}, pageData...)
	out = append(out, selfHash[:8]...)
	out = append(out, footerTail.Bytes()...)
	return out
}

func footerIntegrityErr(msg string) error {
	return cerrors.FooterIntegrity(msg)
}
