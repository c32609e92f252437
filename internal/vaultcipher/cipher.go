// Package vaultcipher defines the pluggable cryptographic seam the vault
// engine drives but does not implement: the AEAD block cipher and filename
// encryption are external collaborators, out of scope for this engine. This
// package is the interface boundary, grounded on how storj's
// pkg/encryption keeps its stream cipher behind a small interface rather
// than baking a concrete AEAD choice into callers.
package vaultcipher

import "io"

// Cipher performs filename encryption/decryption and streaming content
// encryption/decryption for one unlocked repo. A production implementation
// wraps a real AEAD construction; this module only depends on the
// interface.
type Cipher interface {
	// EncryptName encrypts a single decrypted path segment.
	EncryptName(name string) (string, error)
	// DecryptName decrypts a single encrypted path segment. Per-entry
	// failures are represented as an error value, never a panic, so
	// callers can record a per-entry decrypt error on individual
	// RepoFile entries without aborting a batch.
	DecryptName(name string) (string, error)

	// EncryptingReader wraps r, yielding ciphertext bytes suitable for
	// streaming upload.
	EncryptingReader(r io.Reader) (io.Reader, error)
	// DecryptingReader wraps r (ciphertext from the server), yielding
	// plaintext bytes lazily as the consumer pulls from it during
	// download.
	DecryptingReader(r io.Reader) (io.Reader, error)

	// EncryptedSize returns the ciphertext length for a given plaintext
	// length, used to validate downloads and to size decrypt buffers.
	EncryptedSize(decryptedSize int64) int64
	// DecryptedSize is the inverse of EncryptedSize.
	DecryptedSize(encryptedSize int64) int64
}

// EncryptPath encrypts every segment of a decrypted path independently,
// joining them back with "/", mirroring how the original encrypts
// filenames but not directory structure shape.
func EncryptPath(c Cipher, decryptedPath string) (string, error) {
	return mapPathSegments(decryptedPath, c.EncryptName)
}

// DecryptPath is the inverse of EncryptPath. If any segment fails to
// decrypt, the cipher's error for that segment is returned as is, so the
// caller can build a per-entry DecryptError instead of aborting.
func DecryptPath(c Cipher, encryptedPath string) (string, error) {
	return mapPathSegments(encryptedPath, c.DecryptName)
}

func mapPathSegments(path string, f func(string) (string, error)) (string, error) {
	if path == "/" || path == "" {
		return "/", nil
	}

	segments := splitPath(path)
	out := make([]string, len(segments))

	for i, seg := range segments {
		mapped, err := f(seg)
		if err != nil {
			return "", err
		}

		out[i] = mapped
	}

	return "/" + joinSegments(out), nil
}

func splitPath(path string) []string {
	trimmed := path
	if len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}

	var segments []string

	start := 0

	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '/' {
			segments = append(segments, trimmed[start:i])
			start = i + 1
		}
	}

	segments = append(segments, trimmed[start:])

	return segments
}

func joinSegments(segments []string) string {
	out := ""

	for i, s := range segments {
		if i > 0 {
			out += "/"
		}

		out += s
	}

	return out
}
