package patch

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

const zbsdiffMagic = "ZBSDIFF1"

// ControlTriple is one bsdiff-style instruction: copy diffBytes from the
// diff stream (added to the old file's current window), then copy
// extraBytes verbatim from the extra stream, then seek the old file
// position forward by seek bytes (spec §4.5).
type ControlTriple struct {
	DiffBytes  int64
	ExtraBytes int64
	Seek       int64
}

// ZBSDiff is a parsed ZBSDIFF1 binary diff: three zlib-compressed
// streams (control, diff, extra) plus the declared output size.
type ZBSDiff struct {
	NewSize int64
	Control []ControlTriple
	Diff    []byte
	Extra   []byte
}

// ParseZBSDiff parses the "ZBSDIFF1" header and inflates its three
// streams.
func ParseZBSDiff(data []byte) (*ZBSDiff, error) {
	if len(data) < 32 || string(data[:8]) != zbsdiffMagic {
		return nil, cerrors.InvalidMagic(data)
	}
	ctrlSize := int64(binary.BigEndian.Uint64(data[8:16]))
	diffSize := int64(binary.BigEndian.Uint64(data[16:24]))
	newSize := int64(binary.BigEndian.Uint64(data[24:32]))
	if ctrlSize < 0 || diffSize < 0 || newSize < 0 {
		return nil, cerrors.InvalidHeader("patch: zbsdiff1 negative stream size")
	}

	off := int64(32)
	if off+ctrlSize > int64(len(data)) {
		return nil, cerrors.TruncatedData(int(off+ctrlSize), len(data))
	}
	ctrlBytes, err := inflate(data[off : off+ctrlSize])
	if err != nil {
		return nil, err
	}
	off += ctrlSize

	if off+diffSize > int64(len(data)) {
		return nil, cerrors.TruncatedData(int(off+diffSize), len(data))
	}
	diffBytes, err := inflate(data[off : off+diffSize])
	if err != nil {
		return nil, err
	}
	off += diffSize

	extraBytes, err := inflate(data[off:])
	if err != nil {
		return nil, err
	}

	if len(ctrlBytes)%24 != 0 {
		return nil, cerrors.InvalidHeader("patch: zbsdiff1 control stream not a multiple of 24 bytes")
	}
	triples := make([]ControlTriple, len(ctrlBytes)/24)
	for i := range triples {
		base := i * 24
		triples[i] = ControlTriple{
			DiffBytes:  int64(binary.BigEndian.Uint64(ctrlBytes[base:])),
			ExtraBytes: int64(binary.BigEndian.Uint64(ctrlBytes[base+8:])),
			Seek:       int64(binary.BigEndian.Uint64(ctrlBytes[base+16:])),
		}
	}

	return &ZBSDiff{NewSize: newSize, Control: triples, Diff: diffBytes, Extra: extraBytes}, nil
}

func inflate(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, cerrors.CompressionError(err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, cerrors.CompressionError(err)
	}
	return out, nil
}

func deflate(raw []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(raw)
	w.Close()
	return buf.Bytes()
}

// Apply reconstructs the new file from old using d's control triples,
// rejecting output that would exceed maxNewSize (spec §4.5: "reject if
// new_size exceeds a caller-supplied ceiling").
func (d *ZBSDiff) Apply(old []byte, maxNewSize int64) ([]byte, error) {
	if d.NewSize > maxNewSize {
		return nil, fmt.Errorf("patch: zbsdiff1 new_size %d exceeds ceiling %d", d.NewSize, maxNewSize)
	}

	out := make([]byte, 0, d.NewSize)
	var oldPos, diffPos, extraPos int64

	for _, t := range d.Control {
		if diffPos+t.DiffBytes > int64(len(d.Diff)) {
			return nil, cerrors.TruncatedData(int(diffPos+t.DiffBytes), len(d.Diff))
		}
		if oldPos+t.DiffBytes > int64(len(old)) {
			return nil, cerrors.TruncatedData(int(oldPos+t.DiffBytes), len(old))
		}
		for i := int64(0); i < t.DiffBytes; i++ {
			out = append(out, d.Diff[diffPos+i]+old[oldPos+i])
		}
		diffPos += t.DiffBytes
		oldPos += t.DiffBytes

		if extraPos+t.ExtraBytes > int64(len(d.Extra)) {
			return nil, cerrors.TruncatedData(int(extraPos+t.ExtraBytes), len(d.Extra))
		}
		out = append(out, d.Extra[extraPos:extraPos+t.ExtraBytes]...)
		extraPos += t.ExtraBytes

		oldPos += t.Seek
	}

	if int64(len(out)) != d.NewSize {
		return nil, fmt.Errorf("patch: zbsdiff1 apply produced %d bytes, expected %d", len(out), d.NewSize)
	}
	return out, nil
}

// BuildZBSDiff serializes d to ParseZBSDiff's wire format.
func BuildZBSDiff(d *ZBSDiff) []byte {
	var ctrl []byte
	for _, t := range d.Control {
		ctrl = binary.BigEndian.AppendUint64(ctrl, uint64(t.DiffBytes))
		ctrl = binary.BigEndian.AppendUint64(ctrl, uint64(t.ExtraBytes))
		ctrl = binary.BigEndian.AppendUint64(ctrl, uint64(t.Seek))
	}
	ctrlCompressed := deflate(ctrl)
	diffCompressed := deflate(d.Diff)
	extraCompressed := deflate(d.Extra)

	var out []byte
	out = append(out, zbsdiffMagic...)
	out = binary.BigEndian.AppendUint64(out, uint64(len(ctrlCompressed)))
	out = binary.BigEndian.AppendUint64(out, uint64(len(diffCompressed)))
	out = binary.BigEndian.AppendUint64(out, uint64(d.NewSize))
	out = append(out, ctrlCompressed...)
	out = append(out, diffCompressed...)
	out = append(out, extraCompressed...)
	return out
}

// BuildSimple constructs a correct-but-non-optimal ZBSDIFF1 diff: a
// single (0, len(new), 0) control triple placing the whole new file into
// the extra stream (spec §4.5: "an accepted simple builder emits a
// single triple"). It needs no suffix array over old.
func BuildSimple(newContent []byte) *ZBSDiff {
	return &ZBSDiff{
		NewSize: int64(len(newContent)),
		Control: []ControlTriple{{DiffBytes: 0, ExtraBytes: int64(len(newContent)), Seek: 0}},
		Diff:    nil,
		Extra:   newContent,
	}
}
