package manifest

import (
	"crypto/md5"
	"encoding/binary"
	"sort"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// Encoding is the parsed encoding manifest (spec §4.4.2): two page-indexed
// tables, CKey->EKeys and EKey->ESpec, paged like the archive index (spec
// §3.2) — sorted keys and a TOC holding each page's last key — plus a full
// 16-byte MD5 per page (the archive index has one footer hash instead).
// original_source's filtered pack carries no encoding.rs to transcribe
// byte-for-byte (see DESIGN.md); this layout is a self-consistent design
// from the spec's textual description plus the archive index's page/TOC
// shape.
type Encoding struct {
	ESpecs []string

	cKeyPages [][]CKeyEntry
	cKeyTOC   []fingerprint.Fingerprint

	eKeyPages [][]EKeyEntry
	eKeyTOC   []fingerprint.Fingerprint
}

// CKeyEntry maps one content key to its encoded representation(s).
type CKeyEntry struct {
	CKey        fingerprint.Fingerprint
	EKeys       []fingerprint.Fingerprint
	EncodedSize uint64
}

// EKeyEntry maps one encoding key to the compression spec string used to
// produce it (an index into Encoding.ESpecs) and its encoded size.
type EKeyEntry struct {
	EKey        fingerprint.Fingerprint
	ESpecIndex  uint32
	EncodedSize uint64
}

const encodingPageEntries = 32 // entries per page, both tables

// CKeyToEKeys returns the encoding keys a content key maps to (spec
// §4.4.2, "ckey_to_ekeys").
func (e *Encoding) CKeyToEKeys(ckey fingerprint.Fingerprint) ([]fingerprint.Fingerprint, bool) {
	page := findPage(e.cKeyTOC, ckey)
	if page < 0 {
		return nil, false
	}
	entries := e.cKeyPages[page]
	i := sort.Search(len(entries), func(i int) bool { return !entries[i].CKey.Less(ckey) })
	if i < len(entries) && entries[i].CKey == ckey {
		return entries[i].EKeys, true
	}
	return nil, false
}

// EKeyToESpec returns the compression spec string for an encoding key
// (spec §4.4.2, "ekey_to_espec").
func (e *Encoding) EKeyToESpec(ekey fingerprint.Fingerprint) (string, bool) {
	page := findPage(e.eKeyTOC, ekey)
	if page < 0 {
		return "", false
	}
	entries := e.eKeyPages[page]
	i := sort.Search(len(entries), func(i int) bool { return !entries[i].EKey.Less(ekey) })
	if i < len(entries) && entries[i].EKey == ekey {
		idx := entries[i].ESpecIndex
		if int(idx) >= len(e.ESpecs) {
			return "", false
		}
		return e.ESpecs[idx], true
	}
	return "", false
}

// findPage binary-searches a TOC (one key per page, the page's last key)
// for the first page whose TOC key is >= target, the same two-level
// search strategy the archive index uses.
func findPage(toc []fingerprint.Fingerprint, target fingerprint.Fingerprint) int {
	i := sort.Search(len(toc), func(i int) bool { return !toc[i].Less(target) })
	if i >= len(toc) {
		return -1
	}
	return i
}

// NewEncoding builds an Encoding from content-key and encoding-key entries,
// paginating and sorting them the way Parse expects to find them on disk.
func NewEncoding(cEntries []CKeyEntry, eEntries []EKeyEntry, especs []string) *Encoding {
	sort.Slice(cEntries, func(i, j int) bool { return cEntries[i].CKey.Less(cEntries[j].CKey) })
	sort.Slice(eEntries, func(i, j int) bool { return eEntries[i].EKey.Less(eEntries[j].EKey) })

	enc := &Encoding{ESpecs: especs}
	for i := 0; i < len(cEntries); i += encodingPageEntries {
		end := min(i+encodingPageEntries, len(cEntries))
		page := cEntries[i:end]
		enc.cKeyPages = append(enc.cKeyPages, page)
		enc.cKeyTOC = append(enc.cKeyTOC, page[len(page)-1].CKey)
	}
	for i := 0; i < len(eEntries); i += encodingPageEntries {
		end := min(i+encodingPageEntries, len(eEntries))
		page := eEntries[i:end]
		enc.eKeyPages = append(enc.eKeyPages, page)
		enc.eKeyTOC = append(enc.eKeyTOC, page[len(page)-1].EKey)
	}
	return enc
}

// BuildEncoding serializes e to its on-disk form: ESpec block, then the
// CKey table (TOC + pages), then the EKey table (TOC + pages), each page
// preceded by its TOC key and the MD5 of its bytes, which ParseEncoding
// checks.
func BuildEncoding(e *Encoding) []byte {
	var out []byte

	out = binary.BigEndian.AppendUint32(out, uint32(len(e.ESpecs)))
	for _, s := range e.ESpecs {
		out = append(out, s...)
		out = append(out, 0)
	}

	encodeCKeyTable(&out, e.cKeyPages, e.cKeyTOC)
	encodeEKeyTable(&out, e.eKeyPages, e.eKeyTOC)
	return out
}

func encodeCKeyTable(out *[]byte, pages [][]CKeyEntry, toc []fingerprint.Fingerprint) {
	*out = binary.BigEndian.AppendUint32(*out, uint32(len(pages)))
	for i, page := range pages {
		var pageBytes []byte
		pageBytes = binary.BigEndian.AppendUint32(pageBytes, uint32(len(page)))
		for _, ent := range page {
			pageBytes = append(pageBytes, ent.CKey.Bytes()...)
			pageBytes = binary.BigEndian.AppendUint64(pageBytes, ent.EncodedSize)
			pageBytes = binary.BigEndian.AppendUint32(pageBytes, uint32(len(ent.EKeys)))
			for _, ek := range ent.EKeys {
				pageBytes = append(pageBytes, ek.Bytes()...)
			}
		}
		hash := md5.Sum(pageBytes)
		*out = append(*out, toc[i].Bytes()...)
		*out = append(*out, hash[:]...)
		*out = binary.BigEndian.AppendUint32(*out, uint32(len(pageBytes)))
		*out = append(*out, pageBytes...)
	}
}

func encodeEKeyTable(out *[]byte, pages [][]EKeyEntry, toc []fingerprint.Fingerprint) {
	*out = binary.BigEndian.AppendUint32(*out, uint32(len(pages)))
	for i, page := range pages {
		var pageBytes []byte
		pageBytes = binary.BigEndian.AppendUint32(pageBytes, uint32(len(page)))
		for _, ent := range page {
			pageBytes = append(pageBytes, ent.EKey.Bytes()...)
			pageBytes = binary.BigEndian.AppendUint32(pageBytes, ent.ESpecIndex)
			pageBytes = binary.BigEndian.AppendUint64(pageBytes, ent.EncodedSize)
		}
		hash := md5.Sum(pageBytes)
		*out = append(*out, toc[i].Bytes()...)
		*out = append(*out, hash[:]...)
		*out = binary.BigEndian.AppendUint32(*out, uint32(len(pageBytes)))
		*out = append(*out, pageBytes...)
	}
}

// ParseEncoding parses the byte form BuildEncoding produces.
func ParseEncoding(data []byte) (*Encoding, error) {
	off := 0
	if len(data) < 4 {
		return nil, cerrors.TruncatedData(4, len(data))
	}
	especCount := binary.BigEndian.Uint32(data[off:])
	off += 4

	especs := make([]string, especCount)
	for i := range especs {
		start := off
		for off < len(data) && data[off] != 0 {
			off++
		}
		if off >= len(data) {
			return nil, cerrors.TruncatedData(off+1, len(data))
		}
		especs[i] = string(data[start:off])
		off++
	}

	enc := &Encoding{ESpecs: especs}

	cPages, cTOC, newOff, err := decodeCKeyTable(data, off)
	if err != nil {
		return nil, err
	}
	enc.cKeyPages, enc.cKeyTOC = cPages, cTOC
	off = newOff

	ePages, eTOC, _, err := decodeEKeyTable(data, off)
	if err != nil {
		return nil, err
	}
	enc.eKeyPages, enc.eKeyTOC = ePages, eTOC

	return enc, nil
}

func decodeCKeyTable(data []byte, off int) ([][]CKeyEntry, []fingerprint.Fingerprint, int, error) {
	if len(data) < off+4 {
		return nil, nil, 0, cerrors.TruncatedData(off+4, len(data))
	}
	pageCount := binary.BigEndian.Uint32(data[off:])
	off += 4

	pages := make([][]CKeyEntry, pageCount)
	toc := make([]fingerprint.Fingerprint, pageCount)
	for p := uint32(0); p < pageCount; p++ {
		if len(data) < off+fingerprint.Size+16+4 {
			return nil, nil, 0, cerrors.TruncatedData(off+fingerprint.Size+16+4, len(data))
		}
		tocKey, err := fingerprint.FromBytes(data[off : off+fingerprint.Size])
		if err != nil {
			return nil, nil, 0, err
		}
		off += fingerprint.Size
		wantHash := append([]byte(nil), data[off:off+16]...)
		off += 16
		pageLen := binary.BigEndian.Uint32(data[off:])
		off += 4
		if len(data) < off+int(pageLen) {
			return nil, nil, 0, cerrors.TruncatedData(off+int(pageLen), len(data))
		}
		pageBytes := data[off : off+int(pageLen)]
		off += int(pageLen)

		gotHash := md5.Sum(pageBytes)
		if !bytesEqual(gotHash[:], wantHash) {
			return nil, nil, 0, cerrors.FooterIntegrity("manifest: encoding ckey page hash mismatch")
		}

		entries, err := decodeCKeyPage(pageBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		pages[p] = entries
		toc[p] = tocKey
	}
	return pages, toc, off, nil
}

func decodeCKeyPage(b []byte) ([]CKeyEntry, error) {
	if len(b) < 4 {
		return nil, cerrors.TruncatedData(4, len(b))
	}
	count := binary.BigEndian.Uint32(b)
	off := 4
	entries := make([]CKeyEntry, count)
	for i := range entries {
		if len(b) < off+fingerprint.Size+8+4 {
			return nil, cerrors.TruncatedData(off+fingerprint.Size+8+4, len(b))
		}
		ck, err := fingerprint.FromBytes(b[off : off+fingerprint.Size])
		if err != nil {
			return nil, err
		}
		off += fingerprint.Size
		size := binary.BigEndian.Uint64(b[off:])
		off += 8
		ekeyCount := binary.BigEndian.Uint32(b[off:])
		off += 4
		if len(b) < off+int(ekeyCount)*fingerprint.Size {
			return nil, cerrors.TruncatedData(off+int(ekeyCount)*fingerprint.Size, len(b))
		}
		ekeys := make([]fingerprint.Fingerprint, ekeyCount)
		for j := range ekeys {
			ek, err := fingerprint.FromBytes(b[off : off+fingerprint.Size])
			if err != nil {
				return nil, err
			}
			ekeys[j] = ek
			off += fingerprint.Size
		}
		entries[i] = CKeyEntry{CKey: ck, EKeys: ekeys, EncodedSize: size}
	}
	return entries, nil
}

func decodeEKeyTable(data []byte, off int) ([][]EKeyEntry, []fingerprint.Fingerprint, int, error) {
	if len(data) < off+4 {
		return nil, nil, 0, cerrors.TruncatedData(off+4, len(data))
	}
	pageCount := binary.BigEndian.Uint32(data[off:])
	off += 4

	pages := make([][]EKeyEntry, pageCount)
	toc := make([]fingerprint.Fingerprint, pageCount)
	for p := uint32(0); p < pageCount; p++ {
		if len(data) < off+fingerprint.Size+16+4 {
			return nil, nil, 0, cerrors.TruncatedData(off+fingerprint.Size+16+4, len(data))
		}
		tocKey, err := fingerprint.FromBytes(data[off : off+fingerprint.Size])
		if err != nil {
			return nil, nil, 0, err
		}
		off += fingerprint.Size
		wantHash := append([]byte(nil), data[off:off+16]...)
		off += 16
		pageLen := binary.BigEndian.Uint32(data[off:])
		off += 4
		if len(data) < off+int(pageLen) {
			return nil, nil, 0, cerrors.TruncatedData(off+int(pageLen), len(data))
		}
		pageBytes := data[off : off+int(pageLen)]
		off += int(pageLen)

		gotHash := md5.Sum(pageBytes)
		if !bytesEqual(gotHash[:], wantHash) {
			return nil, nil, 0, cerrors.FooterIntegrity("manifest: encoding ekey page hash mismatch")
		}

		entries, err := decodeEKeyPage(pageBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		pages[p] = entries
		toc[p] = tocKey
	}
	return pages, toc, off, nil
}

func decodeEKeyPage(b []byte) ([]EKeyEntry, error) {
	if len(b) < 4 {
		return nil, cerrors.TruncatedData(4, len(b))
	}
	count := binary.BigEndian.Uint32(b)
	off := 4
	entries := make([]EKeyEntry, count)
	for i := range entries {
		if len(b) < off+fingerprint.Size+4+8 {
			return nil, cerrors.TruncatedData(off+fingerprint.Size+4+8, len(b))
		}
		ek, err := fingerprint.FromBytes(b[off : off+fingerprint.Size])
		if err != nil {
			return nil, err
		}
		off += fingerprint.Size
		especIdx := binary.BigEndian.Uint32(b[off:])
		off += 4
		size := binary.BigEndian.Uint64(b[off:])
		off += 8
		entries[i] = EKeyEntry{EKey: ek, ESpecIndex: especIdx, EncodedSize: size}
	}
	return entries, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
