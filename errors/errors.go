// Package errors defines the error taxonomy shared by every cascette-go
// subsystem: BLTE, archive/index, cache, manifest and patch decoding all
// construct errors through this package so callers can tell a retryable
// failure (network, disk, truncated read) from a permanent one (bad magic,
// checksum mismatch, missing key) without inspecting subsystem-specific
// types.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a CascetteError for caller policy purposes.
type Kind string

const (
	KindInvalidMagic          Kind = "invalid_magic"
	KindInvalidHeader         Kind = "invalid_header"
	KindTruncatedData         Kind = "truncated_data"
	KindChecksumMismatch      Kind = "checksum_mismatch"
	KindUnknownCompressMode   Kind = "unknown_compression_mode"
	KindKeyUnavailable        Kind = "key_unavailable"
	KindEncryptionError       Kind = "encryption_error"
	KindCompressionError      Kind = "compression_error"
	KindLookupMiss            Kind = "lookup_miss"
	KindFetchFailed           Kind = "fetch_failed"
	KindIO                    Kind = "io_error"
	KindFooterIntegrity       Kind = "footer_integrity"
	KindInvalidChunkCount     Kind = "invalid_chunk_count"
)

// retryableKinds lists the kinds whose default caller policy is "retryable":
// TruncatedData and IO. FetchFailed is retryable only when its wrapped cause
// says so (see Retryable below). Everything else is permanent until the
// underlying cause changes (e.g. a key store reload).
var retryableKinds = map[Kind]bool{
	KindTruncatedData: true,
	KindIO:            true,
}

// CascetteError is the concrete error type returned at every public package
// boundary in this module.
type CascetteError struct {
	Kind Kind
	Err  error
	// Context carries kind-specific diagnostic payloads, e.g. the key ID for
	// KeyUnavailable or the expected/actual byte counts for TruncatedData.
	Context map[string]any
}

func (e *CascetteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *CascetteError) Unwrap() error { return e.Err }

// Retryable reports whether the caller's default policy should be to retry
// the operation. Whatever the Kind, it defers to the wrapped cause when that
// cause is itself a CascetteError or implements a `Retryable() bool` method;
// otherwise the Kind table above decides.
func (e *CascetteError) Retryable() bool {
	var inner *CascetteError
	if errors.As(e.Err, &inner) && inner != e {
		return inner.Retryable()
	}
	if rb, ok := e.Err.(interface{ Retryable() bool }); ok {
		return rb.Retryable()
	}
	return retryableKinds[e.Kind]
}

func newErr(kind Kind, err error, ctx map[string]any) *CascetteError {
	return &CascetteError{Kind: kind, Err: err, Context: ctx}
}

func InvalidMagic(got []byte) *CascetteError {
	return newErr(KindInvalidMagic, fmt.Errorf("invalid magic bytes: %x", got), map[string]any{"got": got})
}

func InvalidHeader(msg string) *CascetteError {
	return newErr(KindInvalidHeader, errors.New(msg), nil)
}

func InvalidChunkCount(count uint32) *CascetteError {
	return newErr(KindInvalidChunkCount, fmt.Errorf("chunk count %d exceeds maximum of 65536", count), map[string]any{"count": count})
}

func TruncatedData(expected, actual int) *CascetteError {
	return newErr(KindTruncatedData, fmt.Errorf("truncated data: expected %d bytes, got %d", expected, actual),
		map[string]any{"expected": expected, "actual": actual})
}

func ChecksumMismatch(expected, got []byte) *CascetteError {
	return newErr(KindChecksumMismatch, fmt.Errorf("checksum mismatch: expected %x, got %x", expected, got),
		map[string]any{"expected": expected, "got": got})
}

func UnknownCompressionMode(mode byte) *CascetteError {
	return newErr(KindUnknownCompressMode, fmt.Errorf("unknown compression mode %q (0x%02x)", mode, mode),
		map[string]any{"mode": mode})
}

func KeyUnavailable(keyID uint64) *CascetteError {
	return newErr(KindKeyUnavailable, fmt.Errorf("encryption key %016x not available", keyID),
		map[string]any{"key_id": keyID})
}

func EncryptionError(err error) *CascetteError {
	return newErr(KindEncryptionError, err, nil)
}

func CompressionError(err error) *CascetteError {
	return newErr(KindCompressionError, err, nil)
}

func LookupMiss(key string) *CascetteError {
	return newErr(KindLookupMiss, fmt.Errorf("key not found: %s", key), map[string]any{"key": key})
}

func FetchFailed(ekeyHex string, cause error) *CascetteError {
	return newErr(KindFetchFailed, fmt.Errorf("fetch failed for %s: %w", ekeyHex, cause), map[string]any{"ekey": ekeyHex})
}

func IOError(cause error) *CascetteError {
	return newErr(KindIO, cause, nil)
}

func FooterIntegrity(msg string) *CascetteError {
	return newErr(KindFooterIntegrity, errors.New(msg), nil)
}

// Is reports whether the first CascetteError in err's wrap chain carries
// the given Kind; CascetteErrors nested further down are not examined.
func Is(err error, kind Kind) bool {
	var ce *CascetteError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
