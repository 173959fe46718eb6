// Package fingerprint holds the fixed-size content-addressing keys used
// throughout cascette-go: the content key (CKey) and encoding key (EKey) of
// spec §3.5, plus the truncated 9-byte view used by on-disk CASC indexes.
package fingerprint

import (
	"encoding/hex"
	"fmt"
)

// Size is the byte width of a full CKey/EKey (MD5 digest width).
const Size = 16

// TruncatedSize is the byte width EKeys are stored at in CASC local storage
// indexes (spec §3.3).
const TruncatedSize = 9

// Fingerprint is an opaque 16-byte content or encoding key. Equality is
// byte-wise; the zero value is a valid, distinguishable "undefined" key.
type Fingerprint [Size]byte

// Zero is the all-zero fingerprint, used as a sentinel in chunk checksum
// fields to mean "verification skipped" (spec §3.1).
var Zero Fingerprint

// IsZero reports whether f is the all-zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == Zero
}

// String renders the fingerprint as lowercase hex, the canonical display
// form used across BPSV manifests and log output.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Bytes returns the fingerprint's 16 bytes as a freshly allocated slice.
func (f Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f[:])
	return out
}

// Truncate returns the first n bytes of the fingerprint. It panics if n is
// out of [0, Size], mirroring the bounds-checked helpers used elsewhere in
// this module for fixed-width binary fields.
func (f Fingerprint) Truncate(n int) []byte {
	if n < 0 || n > Size {
		panic(fmt.Sprintf("fingerprint: truncate length %d out of range", n))
	}
	out := make([]byte, n)
	copy(out, f[:n])
	return out
}

// Truncated9 returns the 9-byte prefix used by CASC local storage indexes.
func (f Fingerprint) Truncated9() [TruncatedSize]byte {
	var out [TruncatedSize]byte
	copy(out[:], f[:TruncatedSize])
	return out
}

// FromBytes parses a fingerprint from an exactly Size-byte slice.
func FromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != Size {
		return f, fmt.Errorf("fingerprint: expected %d bytes, got %d", Size, len(b))
	}
	copy(f[:], b)
	return f, nil
}

// FromHex parses a fingerprint from its lowercase-or-uppercase hex form.
func FromHex(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("fingerprint: invalid hex %q: %w", s, err)
	}
	return FromBytes(b)
}

// Less reports whether f sorts strictly before g, the ordering used by
// archive index records and encoding/size manifest pages (spec §3.2, §8.1
// invariant 5).
func (f Fingerprint) Less(g Fingerprint) bool {
	for i := range f {
		if f[i] != g[i] {
			return f[i] < g[i]
		}
	}
	return false
}

// Compare returns -1, 0, or 1 as f is less than, equal to, or greater than g.
func (f Fingerprint) Compare(g Fingerprint) int {
	for i := range f {
		if f[i] != g[i] {
			if f[i] < g[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
