package crypto

import (
	"crypto/rc4"
	"fmt"
)

// ARC4XOR runs the ARC4 (RC4) keystream over src into dst. Encryption and
// decryption are the same operation (XOR with the keystream); key must be
// 1-256 bytes. This wraps the standard library's crypto/rc4: no retrieved
// example repo imports a third-party RC4 implementation, and the algorithm
// has no parameters or variants beyond key length that would benefit from a
// richer library, so the stdlib implementation is used directly (see
// DESIGN.md).
//
// ARC4 is retained only for legacy content per spec §4.1.1; callers are
// responsible for any policy restricting its use to old products.
func ARC4XOR(dst, src, key []byte) error {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return fmt.Errorf("crypto: arc4 key rejected: %w", err)
	}
	if len(dst) < len(src) {
		return fmt.Errorf("crypto: arc4 dst too short: %d < %d", len(dst), len(src))
	}
	c.XORKeyStream(dst, src)
	return nil
}
