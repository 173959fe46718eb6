package crypto

import (
	"fmt"

	"golang.org/x/crypto/salsa20"
)

// Salsa20KeySize is the canonical key width; 128-bit keys are repeated to
// fill it, as spec §4.6 requires.
const Salsa20KeySize = 32

// Salsa20NonceSize is the IV width used by BLTE's `E`-mode encrypted chunks.
const Salsa20NonceSize = 8

// Salsa20XOR encrypts (or, symmetrically, decrypts) data with Salsa20/20
// using key and an 8-byte nonce, matching the effective-IV construction of
// spec §4.1.1. key must be 16 or 32 bytes; a 16-byte key is repeated to fill
// the 32-byte Salsa20 key as the original CASC client does for legacy
// products.
func Salsa20XOR(dst, src, nonce, key []byte) error {
	if len(nonce) != Salsa20NonceSize {
		return fmt.Errorf("crypto: salsa20 nonce must be %d bytes, got %d", Salsa20NonceSize, len(nonce))
	}
	expandedKey, err := expandSalsaKey(key)
	if err != nil {
		return err
	}
	var nonceArr [Salsa20NonceSize]byte
	copy(nonceArr[:], nonce)

	salsa20.XORKeyStream(dst, src, nonceArr[:], &expandedKey)
	return nil
}

func expandSalsaKey(key []byte) ([Salsa20KeySize]byte, error) {
	var out [Salsa20KeySize]byte
	switch len(key) {
	case Salsa20KeySize:
		copy(out[:], key)
	case 16:
		copy(out[:16], key)
		copy(out[16:], key)
	default:
		return out, fmt.Errorf("crypto: salsa20 key must be 16 or 32 bytes, got %d", len(key))
	}
	return out, nil
}
