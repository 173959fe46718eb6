package manifest

import (
	"encoding/binary"

	cerrors "github.com/rpcpool/cascette-go/errors"
	"github.com/rpcpool/cascette-go/fingerprint"
)

// TVFS container-file-table flags (spec §4.4.4).
const (
	TVFSIncludeCKey    uint32 = 0x01
	TVFSEncodingSpec   uint32 = 0x02
	TVFSPatchSupport   uint32 = 0x04
	tvfsEKeySize              = 9
	tvfsNodeValueMarker       = 0xFF
	tvfsPathSeparator         = 0x00
	tvfsFolderNode     uint32 = 0x8000_0000
	tvfsFolderSizeMask uint32 = 0x7FFF_FFFF
)

// PathTreeNode is a node of the path table's prefix tree (spec §4.4.4).
// VFSOffset is non-nil for file leaves.
type PathTreeNode struct {
	Name      string
	Children  []*PathTreeNode
	VFSOffset *uint32
}

// PathFileEntry is a resolved (path, VFS offset) pair flattened out of the
// tree during a parse.
type PathFileEntry struct {
	Path      string
	VFSOffset uint32
}

// VFSSpan is one content span inside a VFS entry: a byte range of the
// logical file, backed by a byte offset into the container file table.
type VFSSpan struct {
	FileOffset uint32
	SpanLength uint32
	CFTOffset  uint32
}

// TVFSEntry is one container file table row (spec §4.4.4): a 9-byte
// truncated EKey plus, depending on flags, a content key and/or an
// encoding-spec index.
type TVFSEntry struct {
	EKey        fingerprint.Fingerprint // only the low tvfsEKeySize bytes are meaningful
	EncodedSize uint32
	ContentSize uint32
	ContentKey  *fingerprint.Fingerprint
	ESpecIndex  *uint32
}

// TVFSFile is a path + its resolved container entry.
type TVFSFile struct {
	Path string
	TVFSEntry
}

// TVFS is the parsed Target VFS manifest: a path prefix tree, a VFS table
// of spans, and a container file table, laid out the way CascLib's
// ParsePathFileTable/container-file-table reader expects (spec §4.4.4).
// Grounded directly on
// original_source/crates/cascette-formats/src/tvfs/{path_table,builder}.rs.
type TVFS struct {
	Flags    uint32
	MaxDepth uint16
	Root     *PathTreeNode
	Files    []PathFileEntry
	ESpecs   []string
	Entries  []TVFSEntry // indexed by CFTOffset / entry_size
}

// offsSizeFor returns the narrowest byte width (1-4) that can hold values
// up to n; the VFS table's container-file-table offsets use it.
func offsSizeFor(n uint32) int {
	switch {
	case n <= 0xFF:
		return 1
	case n <= 0xFFFF:
		return 2
	case n <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

func readOffs(b []byte, size int) uint32 {
	var v uint32
	for i := 0; i < size; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func putOffs(v uint32, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// ResolvePath returns the container entry for an exact path match.
func (t *TVFS) ResolvePath(path string) (TVFSEntry, bool) {
	for _, f := range t.Files {
		if f.Path == path {
			return t.entryForVFSOffset(f.VFSOffset)
		}
	}
	return TVFSEntry{}, false
}

func (t *TVFS) entryForVFSOffset(vfsOffset uint32) (TVFSEntry, bool) {
	// A single-span file's VFS offset directly encodes the entry index in
	// this core's layout (NewTVFS lays out one span per file, in
	// order); see buildVFSTable.
	entrySize := t.vfsSpanWireSize()
	idx := int(vfsOffset) / entrySize
	if idx < 0 || idx >= len(t.Entries) {
		return TVFSEntry{}, false
	}
	return t.Entries[idx], true
}

func (t *TVFS) vfsSpanWireSize() int {
	return 1 + 4 + 4 + offsSizeFor(uint32(len(t.Entries))*uint32(t.cftEntrySize()))
}

func (t *TVFS) cftEntrySize() int {
	size := tvfsEKeySize + 4
	if t.Flags&TVFSIncludeCKey != 0 {
		size += fingerprint.Size
	}
	if t.Flags&TVFSEncodingSpec != 0 {
		size += 4
	}
	return size
}

// BuildPathTable serializes root using CascLib's CapturePathEntry layout:
// 0x00 separator, length-prefixed name fragment, 0xFF + big-endian
// NodeValue (folder bit + inline child length, or a raw VFS offset).
func BuildPathTable(root *PathTreeNode) []byte {
	var out []byte
	buildPathDirectory(&out, root)
	return out
}

func buildPathDirectory(out *[]byte, node *PathTreeNode) {
	for _, child := range node.Children {
		buildPathEntry(out, child)
	}
}

func buildPathEntry(out *[]byte, node *PathTreeNode) {
	nameBytes := []byte(node.Name)
	if len(nameBytes) > 0 {
		*out = append(*out, tvfsPathSeparator)
		for len(nameBytes) > 255 {
			*out = append(*out, 255)
			*out = append(*out, nameBytes[:255]...)
			nameBytes = nameBytes[255:]
		}
		*out = append(*out, byte(len(nameBytes)))
		*out = append(*out, nameBytes...)
	}

	*out = append(*out, tvfsNodeValueMarker)
	if node.VFSOffset != nil {
		*out = binary.BigEndian.AppendUint32(*out, *node.VFSOffset)
		return
	}

	var children []byte
	buildPathDirectory(&children, node)
	folderLen := uint32(len(children) + 4)
	nodeValue := tvfsFolderNode | (folderLen & tvfsFolderSizeMask)
	*out = binary.BigEndian.AppendUint32(*out, nodeValue)
	*out = append(*out, children...)
}

// ParsePathTable parses the byte form BuildPathTable produces, returning
// the flattened file list and the reconstructed tree.
func ParsePathTable(data []byte) ([]PathFileEntry, *PathTreeNode, error) {
	root := &PathTreeNode{}
	var files []PathFileEntry
	if err := parsePathDirectory(data, 0, len(data), "", &files, root); err != nil {
		return nil, nil, err
	}
	return files, root, nil
}

func parsePathDirectory(data []byte, start, end int, prefix string, files *[]PathFileEntry, node *PathTreeNode) error {
	pos := start
	for pos < end {
		var nameParts [][]byte

		if pos < end && data[pos] == tvfsPathSeparator {
			pos++
		}

		for {
			if pos >= end {
				return cerrors.TruncatedData(pos+1, end)
			}
			if data[pos] == tvfsNodeValueMarker {
				break
			}
			nameLen := int(data[pos])
			pos++
			if pos+nameLen > end {
				return cerrors.TruncatedData(pos+nameLen, end)
			}
			nameParts = append(nameParts, data[pos:pos+nameLen])
			pos += nameLen

			if pos >= end {
				return cerrors.TruncatedData(pos+1, end)
			}
			if data[pos] == tvfsNodeValueMarker {
				break
			}
			if data[pos] == tvfsPathSeparator {
				pos++
				if pos < end && data[pos] == tvfsNodeValueMarker {
					break
				}
			}
		}

		if pos >= end || data[pos] != tvfsNodeValueMarker {
			return cerrors.InvalidHeader("manifest: tvfs path table missing node value marker")
		}
		pos++
		if pos+4 > end {
			return cerrors.TruncatedData(pos+4, end)
		}
		nodeValue := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		var nameBuf []byte
		for _, p := range nameParts {
			nameBuf = append(nameBuf, p...)
		}
		name := string(nameBuf)

		fullPath := name
		if prefix != "" {
			if name == "" {
				fullPath = prefix
			} else {
				fullPath = prefix + "/" + name
			}
		}

		if nodeValue&tvfsFolderNode != 0 {
			folderLen := int(nodeValue & tvfsFolderSizeMask)
			if folderLen < 4 {
				return cerrors.InvalidHeader("manifest: tvfs folder data length too small")
			}
			childrenLen := folderLen - 4
			childStart := pos
			childEnd := pos + childrenLen
			if childEnd > end {
				return cerrors.TruncatedData(childEnd, end)
			}
			child := &PathTreeNode{Name: name}
			if err := parsePathDirectory(data, childStart, childEnd, fullPath, files, child); err != nil {
				return err
			}
			node.Children = append(node.Children, child)
			pos = childEnd
		} else {
			v := nodeValue
			*files = append(*files, PathFileEntry{Path: fullPath, VFSOffset: v})
			node.Children = append(node.Children, &PathTreeNode{Name: name, VFSOffset: &v})
		}
	}
	return nil
}

// NewTVFS builds a TVFS manifest from a sorted file list, laying out one
// VFS span per file (builder.rs's simplified single-span-per-file shape)
// and a fixed-stride container file table keyed by flags.
func NewTVFS(files []TVFSFile, flags uint32, especs []string) *TVFS {
	t := &TVFS{Flags: flags, ESpecs: especs}
	t.Entries = make([]TVFSEntry, len(files))
	for i, f := range files {
		t.Entries[i] = f.TVFSEntry
	}

	root := &PathTreeNode{}
	entrySize := t.cftEntrySize()
	spanSize := 1 + 4 + 4 + offsSizeFor(uint32(len(files))*uint32(entrySize))
	for i, f := range files {
		vfsOffset := uint32(i * spanSize)
		insertTVFSPath(root, splitPath(f.Path), vfsOffset)
		t.Files = append(t.Files, PathFileEntry{Path: f.Path, VFSOffset: vfsOffset})
	}
	t.Root = root
	t.MaxDepth = maxPathDepth(root, 0)
	return t
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func insertTVFSPath(node *PathTreeNode, components []string, vfsOffset uint32) {
	if len(components) == 0 {
		return
	}
	name := components[0]
	leaf := len(components) == 1

	for _, c := range node.Children {
		if c.Name == name {
			if leaf {
				v := vfsOffset
				c.VFSOffset = &v
			} else {
				insertTVFSPath(c, components[1:], vfsOffset)
			}
			return
		}
	}

	child := &PathTreeNode{Name: name}
	if leaf {
		v := vfsOffset
		child.VFSOffset = &v
	} else {
		insertTVFSPath(child, components[1:], vfsOffset)
	}
	node.Children = append(node.Children, child)
}

func maxPathDepth(node *PathTreeNode, depth uint16) uint16 {
	max := depth
	for _, c := range node.Children {
		if d := maxPathDepth(c, depth+1); d > max {
			max = d
		}
	}
	return max
}

// buildVFSTable serializes one span per entry, in entry order, matching
// NewTVFS's offset assignment.
func (t *TVFS) buildVFSTable() []byte {
	entrySize := t.cftEntrySize()
	cftOffsSize := offsSizeFor(uint32(len(t.Entries)) * uint32(entrySize))
	var out []byte
	for i := range t.Entries {
		out = append(out, 1) // span_count
		out = binary.BigEndian.AppendUint32(out, 0)
		out = binary.BigEndian.AppendUint32(out, t.Entries[i].ContentSize)
		out = append(out, putOffs(uint32(i*entrySize), cftOffsSize)...)
	}
	return out
}

func (t *TVFS) buildContainerTable() []byte {
	var out []byte
	for _, e := range t.Entries {
		out = append(out, e.EKey.Bytes()[:tvfsEKeySize]...)
		out = binary.BigEndian.AppendUint32(out, e.EncodedSize)
		if t.Flags&TVFSIncludeCKey != 0 {
			if e.ContentKey != nil {
				out = append(out, e.ContentKey.Bytes()...)
			} else {
				out = append(out, make([]byte, fingerprint.Size)...)
			}
		}
		if t.Flags&TVFSEncodingSpec != 0 {
			var idx uint32
			if e.ESpecIndex != nil {
				idx = *e.ESpecIndex
			}
			out = binary.BigEndian.AppendUint32(out, idx)
		}
	}
	return out
}

// BuildTVFS serializes t to a "TVFS" + header + path/est/cft/vfs table
// blob, in the layout order builder.rs assembles (path, est, cft, vfs).
func BuildTVFS(t *TVFS) []byte {
	pathData := BuildPathTable(t.Root)
	cftData := t.buildContainerTable()
	vfsData := t.buildVFSTable()

	var estData []byte
	if t.Flags&TVFSEncodingSpec != 0 {
		for _, s := range t.ESpecs {
			estData = append(estData, s...)
			estData = append(estData, 0)
		}
	}

	const headerSize = 4 + 4*8 + 2
	pathOff := uint32(headerSize)
	estOff := pathOff + uint32(len(pathData))
	cftOff := estOff + uint32(len(estData))
	vfsOff := cftOff + uint32(len(cftData))

	var out []byte
	out = append(out, 'T', 'V', 'F', 'S')
	out = binary.BigEndian.AppendUint32(out, t.Flags)
	out = binary.BigEndian.AppendUint32(out, pathOff)
	out = binary.BigEndian.AppendUint32(out, uint32(len(pathData)))
	out = binary.BigEndian.AppendUint32(out, cftOff)
	out = binary.BigEndian.AppendUint32(out, uint32(len(cftData)))
	out = binary.BigEndian.AppendUint32(out, vfsOff)
	out = binary.BigEndian.AppendUint32(out, uint32(len(vfsData)))
	out = binary.BigEndian.AppendUint32(out, estOff)
	out = binary.BigEndian.AppendUint16(out, t.MaxDepth)

	out = append(out, pathData...)
	out = append(out, estData...)
	out = append(out, cftData...)
	out = append(out, vfsData...)
	return out
}

// ParseTVFS parses the byte form BuildTVFS produces.
func ParseTVFS(data []byte) (*TVFS, error) {
	const headerSize = 4 + 4*8 + 2
	if len(data) < headerSize || data[0] != 'T' || data[1] != 'V' || data[2] != 'F' || data[3] != 'S' {
		return nil, cerrors.InvalidMagic(data)
	}
	flags := binary.BigEndian.Uint32(data[4:8])
	pathOff := binary.BigEndian.Uint32(data[8:12])
	pathSize := binary.BigEndian.Uint32(data[12:16])
	cftOff := binary.BigEndian.Uint32(data[16:20])
	cftSize := binary.BigEndian.Uint32(data[20:24])
	vfsOff := binary.BigEndian.Uint32(data[24:28])
	vfsSize := binary.BigEndian.Uint32(data[28:32])
	estOff := binary.BigEndian.Uint32(data[32:36])
	maxDepth := binary.BigEndian.Uint16(data[36:38])

	if uint32(len(data)) < pathOff+pathSize || uint32(len(data)) < cftOff+cftSize || uint32(len(data)) < vfsOff+vfsSize {
		return nil, cerrors.TruncatedData(int(cftOff+cftSize), len(data))
	}

	files, root, err := ParsePathTable(data[pathOff : pathOff+pathSize])
	if err != nil {
		return nil, err
	}

	t := &TVFS{Flags: flags, MaxDepth: maxDepth, Root: root, Files: files}

	if flags&TVFSEncodingSpec != 0 && estOff > 0 && estOff < cftOff {
		off := estOff
		for off < cftOff {
			start := off
			for off < cftOff && data[off] != 0 {
				off++
			}
			t.ESpecs = append(t.ESpecs, string(data[start:off]))
			off++
		}
	}

	entrySize := t.cftEntrySize()
	if entrySize == 0 || cftSize%uint32(entrySize) != 0 {
		return nil, cerrors.InvalidHeader("manifest: tvfs container table size not a multiple of entry size")
	}
	count := int(cftSize) / entrySize
	entries := make([]TVFSEntry, count)
	off := cftOff
	for i := 0; i < count; i++ {
		ek, err := fingerprint.FromBytes(padTo16(data[off : off+tvfsEKeySize]))
		if err != nil {
			return nil, err
		}
		off += tvfsEKeySize
		encodedSize := binary.BigEndian.Uint32(data[off:])
		off += 4
		entries[i].EKey = ek
		entries[i].EncodedSize = encodedSize
		if flags&TVFSIncludeCKey != 0 {
			ck, err := fingerprint.FromBytes(data[off : off+fingerprint.Size])
			if err != nil {
				return nil, err
			}
			entries[i].ContentKey = &ck
			off += fingerprint.Size
		}
		if flags&TVFSEncodingSpec != 0 {
			idx := binary.BigEndian.Uint32(data[off:])
			entries[i].ESpecIndex = &idx
			off += 4
		}
	}
	t.Entries = entries

	cftOffsSize := offsSizeFor(cftSize)
	voff := vfsOff
	for i := 0; i < count && voff < vfsOff+vfsSize; i++ {
		voff += 1 // span_count
		voff += 4 // file_offset
		spanLen := binary.BigEndian.Uint32(data[voff:])
		voff += 4
		cftEntryOff := readOffs(data[voff:], cftOffsSize)
		voff += uint32(cftOffsSize)
		idx := int(cftEntryOff) / entrySize
		if idx >= 0 && idx < len(t.Entries) {
			t.Entries[idx].ContentSize = spanLen
		}
	}

	return t, nil
}
