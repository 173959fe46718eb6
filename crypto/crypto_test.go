package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestARC4KnownVector(t *testing.T) {
	// Published RC4 test vector: key "Key", plaintext "Plaintext".
	key := []byte("Key")
	plaintext := []byte("Plaintext")
	want, err := hex.DecodeString("bbf316e8d940af0ad3")
	require.NoError(t, err)

	got := make([]byte, len(plaintext))
	require.NoError(t, ARC4XOR(got, plaintext, key))
	require.Equal(t, want, got)

	// ARC4 is its own inverse.
	back := make([]byte, len(got))
	require.NoError(t, ARC4XOR(back, got, key))
	require.Equal(t, plaintext, back)
}

func TestSalsa20RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x2a}, 32)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	plaintext := []byte("the quick brown fox jumps over the lazy dog, 32 times")

	ciphertext := make([]byte, len(plaintext))
	require.NoError(t, Salsa20XOR(ciphertext, plaintext, nonce, key))
	require.NotEqual(t, plaintext, ciphertext)

	decoded := make([]byte, len(ciphertext))
	require.NoError(t, Salsa20XOR(decoded, ciphertext, nonce, key))
	require.Equal(t, plaintext, decoded)
}

func TestSalsa20Repeated128BitKey(t *testing.T) {
	key16 := bytes.Repeat([]byte{0x11}, 16)
	key32 := append(append([]byte{}, key16...), key16...)
	nonce := []byte{0, 0, 0, 0, 0, 0, 0, 1}
	plaintext := []byte("repeated key must match its doubled expansion")

	out16 := make([]byte, len(plaintext))
	out32 := make([]byte, len(plaintext))
	require.NoError(t, Salsa20XOR(out16, plaintext, nonce, key16))
	require.NoError(t, Salsa20XOR(out32, plaintext, nonce, key32))
	require.Equal(t, out32, out16)
}

func TestKeyStoreAddReader(t *testing.T) {
	ks := NewKeyStore()
	data := "# comment line\n" +
		"// another comment\n" +
		"0xFE99045203004DD9 0123456789ABCDEF0123456789ABCDEF\n" +
		"FA505078126ACB3E FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF\n"
	n, err := ks.AddReader(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	k, ok := ks.Get(0xFE99045203004DD9)
	require.True(t, ok)
	require.Equal(t, "0123456789abcdef0123456789abcdef", hex.EncodeToString(k[:]))

	_, ok = ks.Get(0xdeadbeef)
	require.False(t, ok)
}

func TestKeyStoreIsThreadSafeForReads(t *testing.T) {
	ks := NewKeyStore()
	ks.AddKey(1, Key{0x01})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			ks.Get(1)
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		ks.AddKey(uint64(i+2), Key{byte(i)})
	}
	<-done
}
