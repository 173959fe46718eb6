package blte

import (
	"testing"

	"github.com/stretchr/testify/require"

	ccrypto "github.com/rpcpool/cascette-go/crypto"
)

func TestEncodeDecodeSingleChunkNoCompression(t *testing.T) {
	content := []byte("hello content-addressed world")
	raw, err := Encode(content, EncodeOptions{Mode: ModeNone})
	require.NoError(t, err)

	f, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 1, f.ChunkCount())
	require.Nil(t, f.Header())

	got, err := f.Decode(nil)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestEncodeDecodeMultiChunkNoCompression(t *testing.T) {
	content := make([]byte, 256)
	for i := range content {
		content[i] = byte(i)
	}
	raw, err := Encode(content, EncodeOptions{Mode: ModeNone, ChunkSize: 64})
	require.NoError(t, err)

	f, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, 4, f.ChunkCount())
	require.NotNil(t, f.Header())
	require.Equal(t, "standard", f.Convention())

	got, err := f.Decode(nil)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestEncodeDecodeZlibRoundTrip(t *testing.T) {
	content := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbbb")
	raw, err := Encode(content, EncodeOptions{Mode: ModeZlib})
	require.NoError(t, err)

	got, err := Decode(raw, nil)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestEncodeDecodeLZ4RoundTrip(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox jumps over the lazy dog")
	raw, err := Encode(content, EncodeOptions{Mode: ModeLZ4, ChunkSize: 40})
	require.NoError(t, err)

	got, err := Decode(raw, nil)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte("NOPE0000"))
	require.Error(t, err)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	content := []byte("0123456789abcdef0123456789abcdef")
	raw, err := Encode(content, EncodeOptions{Mode: ModeNone, ChunkSize: 16})
	require.NoError(t, err)
	// Corrupt the final byte, which lies inside the last chunk's payload.
	raw[len(raw)-1] ^= 0xFF

	_, err = Decode(raw, nil)
	require.Error(t, err)
}

func TestDecodeEncryptedChunkWithoutKeyFails(t *testing.T) {
	header := encryptedSingleChunkHeader(t, 0xAABBCCDDEEFF0011, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 'S')
	_, err := Decode(header, nil)
	require.Error(t, err)
}

func TestDecodeEncryptedChunkWithKeySucceeds(t *testing.T) {
	keyID := uint64(0xAABBCCDDEEFF0011)
	iv := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	store := ccrypto.NewKeyStore()
	var key ccrypto.Key
	for i := range key {
		key[i] = byte(i)
	}
	store.AddKey(keyID, key)

	plaintext := []byte("top secret asset payload")
	raw := buildEncryptedChunk(t, keyID, iv, 'S', key, plaintext)

	got, err := Decode(raw, store.Provider())
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

// encryptedSingleChunkHeader builds a minimal well-formed encrypted BLTE
// file for a missing-key negative test; the plaintext content is
// irrelevant since decryption must fail before it is reached.
func encryptedSingleChunkHeader(t *testing.T, keyID uint64, iv []byte, cipherType byte) []byte {
	t.Helper()
	var key ccrypto.Key
	return buildEncryptedChunk(t, keyID, iv, cipherType, key, []byte("irrelevant"))
}

func buildEncryptedChunk(t *testing.T, keyID uint64, iv []byte, cipherType byte, key ccrypto.Key, plaintext []byte) []byte {
	t.Helper()

	effectiveIV := append([]byte(nil), iv...)
	for i := 0; i < len(effectiveIV) && i < 4; i++ {
		effectiveIV[i] ^= 0 // chunk index 0 contributes nothing
	}

	inner := append([]byte{byte(ModeNone)}, plaintext...)
	ciphertext := make([]byte, len(inner))
	switch cipherType {
	case 'S':
		require.NoError(t, ccrypto.Salsa20XOR(ciphertext, inner, padTo8(effectiveIV), key[:]))
	case 'A':
		rc4Key := append(append([]byte(nil), key[:]...), effectiveIV...)
		require.NoError(t, ccrypto.ARC4XOR(ciphertext, inner, rc4Key))
	}

	keyName := make([]byte, 8)
	for i := 0; i < 8; i++ {
		keyName[7-i] = byte(keyID >> (8 * i))
	}
	// Trim leading zero bytes the way a real encoder would, to mirror
	// decryptChunk's left-zero-padded key name reconstruction.
	trimmed := keyName
	for len(trimmed) > 1 && trimmed[0] == 0 {
		trimmed = trimmed[1:]
	}

	payload := []byte{byte(len(trimmed))}
	payload = append(payload, trimmed...)
	payload = append(payload, byte(len(iv)))
	payload = append(payload, iv...)
	payload = append(payload, cipherType)
	payload = append(payload, ciphertext...)

	chunkBody := append([]byte{byte(ModeEncrypted)}, payload...)
	return encodeSingle(chunkBody)
}

func padTo8(b []byte) []byte {
	out := make([]byte, 8)
	copy(out, b)
	return out
}
