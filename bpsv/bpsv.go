// Package bpsv implements Blizzard's "pipe-separated values" text table
// format (spec §4.4.1): the wire format behind Ribbit/TACT version and CDN
// config responses. A Table round-trips byte-for-byte through Parse/Build
// for any well-formed input, by keeping every source line (header, `##
// seqn`, comments, data rows, even blank lines) verbatim and only deriving
// typed field access on top of that stored text.
//
// Grounded on the teacher's BPSV-adjacent line-oriented parsers in
// continuity/ (manifest text parsing) for the "keep the raw line, parse a
// typed view alongside it" idiom; uses only the standard library, since the
// pack offers no dedicated delimited-text library beyond encoding/csv,
// which cannot express BPSV's typed header grammar or `##`/`#` line kinds.
package bpsv

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/rpcpool/cascette-go/errors"
)

// FieldType is one of the three BPSV cell types.
type FieldType string

const (
	TypeString FieldType = "STRING"
	TypeHex    FieldType = "HEX"
	TypeDec    FieldType = "DEC"
)

// Field describes one column of the table, parsed from the header's
// `name!type:size` grammar.
type Field struct {
	Name string
	Type FieldType
	Size int
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineHeader
	lineSeqn
	lineComment
	lineData
)

type line struct {
	kind lineKind
	raw  string   // the original line text, without its line terminator
	cols []string // populated only for lineData
}

// Table is a parsed BPSV document. Rows() exposes typed data access; Build
// reconstructs the exact original bytes.
type Table struct {
	Fields []Field
	Seqn   *uint64

	newline        string
	trailingNewline bool
	lines          []line
}

func fieldIndex(fields []Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Parse reads a BPSV document. It validates the header grammar, per-cell
// type constraints, and the `## seqn = N` / arity invariants described in
// spec §4.4.1, but otherwise preserves the input exactly for Build.
func Parse(data []byte) (*Table, error) {
	newline := "\n"
	if strings.Contains(string(data), "\r\n") {
		newline = "\r\n"
	}

	trailingNewline := len(data) > 0 && strings.HasSuffix(string(data), newline)
	text := strings.TrimSuffix(string(data), newline)
	var rawLines []string
	if len(data) == 0 {
		rawLines = nil
	} else {
		rawLines = strings.Split(text, newline)
	}

	t := &Table{newline: newline, trailingNewline: trailingNewline}

	i := 0
	for ; i < len(rawLines); i++ {
		if strings.TrimSpace(rawLines[i]) == "" {
			t.lines = append(t.lines, line{kind: lineBlank, raw: rawLines[i]})
			continue
		}
		fields, err := parseHeader(rawLines[i])
		if err != nil {
			return nil, err
		}
		t.Fields = fields
		t.lines = append(t.lines, line{kind: lineHeader, raw: rawLines[i]})
		i++
		break
	}
	if t.Fields == nil {
		return nil, cerrors.InvalidHeader("bpsv: no header line found")
	}

	seen := false
	for ; i < len(rawLines); i++ {
		raw := rawLines[i]
		switch {
		case strings.TrimSpace(raw) == "":
			t.lines = append(t.lines, line{kind: lineBlank, raw: raw})
		case isSeqnLine(raw):
			n, err := parseSeqnLine(raw)
			if err != nil {
				return nil, err
			}
			if !seen {
				t.Seqn = &n
				seen = true
			}
			t.lines = append(t.lines, line{kind: lineSeqn, raw: raw})
		case strings.HasPrefix(raw, "#"):
			t.lines = append(t.lines, line{kind: lineComment, raw: raw})
		default:
			cols := strings.Split(raw, "|")
			if len(cols) != len(t.Fields) {
				return nil, fmt.Errorf("bpsv: row has %d fields, header declares %d", len(cols), len(t.Fields))
			}
			if err := validateRow(t.Fields, cols); err != nil {
				return nil, err
			}
			t.lines = append(t.lines, line{kind: lineData, raw: raw, cols: cols})
		}
	}
	return t, nil
}

func isSeqnLine(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "## seqn")
}

func parseSeqnLine(raw string) (uint64, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bpsv: malformed seqn line %q", raw)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bpsv: malformed seqn value in %q: %w", raw, err)
	}
	return n, nil
}

func parseHeader(raw string) ([]Field, error) {
	parts := strings.Split(raw, "|")
	fields := make([]Field, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		bang := strings.SplitN(p, "!", 2)
		if len(bang) != 2 {
			return nil, cerrors.InvalidHeader(fmt.Sprintf("bpsv: malformed header field %q", p))
		}
		name := bang[0]
		typeSize := strings.SplitN(bang[1], ":", 2)
		if len(typeSize) != 2 {
			return nil, cerrors.InvalidHeader(fmt.Sprintf("bpsv: malformed header field %q", p))
		}
		typ := FieldType(strings.ToUpper(typeSize[0]))
		switch typ {
		case TypeString, TypeHex, TypeDec:
		default:
			return nil, cerrors.InvalidHeader(fmt.Sprintf("bpsv: unknown field type %q", typeSize[0]))
		}
		size, err := strconv.Atoi(typeSize[1])
		if err != nil || size < 0 {
			return nil, cerrors.InvalidHeader(fmt.Sprintf("bpsv: invalid field size in %q", p))
		}
		if seen[name] {
			return nil, cerrors.InvalidHeader(fmt.Sprintf("bpsv: duplicate field name %q", name))
		}
		seen[name] = true
		fields = append(fields, Field{Name: name, Type: typ, Size: size})
	}
	return fields, nil
}

func validateRow(fields []Field, cols []string) error {
	for i, f := range fields {
		cell := cols[i]
		switch f.Type {
		case TypeString:
			if f.Size > 0 && len(cell) > f.Size {
				return fmt.Errorf("bpsv: field %s exceeds declared size %d", f.Name, f.Size)
			}
		case TypeHex:
			if cell == "" {
				continue
			}
			if len(cell) != 2*f.Size && f.Size > 0 {
				return fmt.Errorf("bpsv: field %s expects %d hex digits, got %d", f.Name, 2*f.Size, len(cell))
			}
			if !isHex(cell) {
				return fmt.Errorf("bpsv: field %s is not valid hex: %q", f.Name, cell)
			}
		case TypeDec:
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				return fmt.Errorf("bpsv: field %s is not a valid decimal: %q", f.Name, cell)
			}
		}
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// Rows returns every data row as a name->cell map, with HEX cells
// normalized to lowercase per spec §4.4.1 ("stored lowercase").
func (t *Table) Rows() []map[string]string {
	var out []map[string]string
	for _, l := range t.lines {
		if l.kind != lineData {
			continue
		}
		row := make(map[string]string, len(t.Fields))
		for i, f := range t.Fields {
			v := l.cols[i]
			if f.Type == TypeHex {
				v = strings.ToLower(v)
			}
			row[f.Name] = v
		}
		out = append(out, row)
	}
	return out
}

// AddRow appends a new data row built from values (in header field order),
// validating it against the schema. Intended for building fresh tables
// rather than round-tripping a parsed one.
func (t *Table) AddRow(values []string) error {
	if len(values) != len(t.Fields) {
		return fmt.Errorf("bpsv: row has %d values, header declares %d", len(values), len(t.Fields))
	}
	if err := validateRow(t.Fields, values); err != nil {
		return err
	}
	t.lines = append(t.lines, line{kind: lineData, raw: strings.Join(values, "|"), cols: append([]string(nil), values...)})
	return nil
}

// New creates an empty table with the given schema, ready for AddRow then
// Build. The newline convention defaults to "\n" with a trailing newline.
func New(fields []Field) *Table {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s!%s:%d", f.Name, f.Type, f.Size)
	}
	header := strings.Join(parts, "|")
	return &Table{
		Fields:          fields,
		newline:         "\n",
		trailingNewline: true,
		lines:           []line{{kind: lineHeader, raw: header}},
	}
}

// Build reconstructs the table's exact byte representation, matching
// Parse's input byte-for-byte for any table obtained via Parse (spec
// §4.4.1, "build(parse(x)) == x").
func Build(t *Table) []byte {
	raws := make([]string, len(t.lines))
	for i, l := range t.lines {
		raws[i] = l.raw
	}
	out := strings.Join(raws, t.newline)
	if t.trailingNewline {
		out += t.newline
	}
	return []byte(out)
}
