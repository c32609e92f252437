package vaultcipher

import (
	"encoding/base32"
	"io"
	"strings"
)

// FakeCipher is a reversible, non-cryptographic stand-in for Cipher used by
// tests and by cmd/vaultd's unlock command. It is NOT secure: name
// encryption is a base32 encoding and content "encryption" is the identity
// transform with an overhead offset so EncryptedSize/DecryptedSize behave
// asymmetrically like a real AEAD's length expansion would. A real
// deployment supplies a production Cipher; this module never bundles one.
type FakeCipher struct {
	// Overhead is the simulated per-file ciphertext expansion (AEAD tag +
	// nonce), mirroring a real cipher's EncryptedSize > DecryptedSize.
	Overhead int64
}

// NewFakeCipher returns a FakeCipher with a plausible AEAD-like overhead.
func NewFakeCipher() *FakeCipher {
	return &FakeCipher{Overhead: 40}
}

func (c *FakeCipher) EncryptName(name string) (string, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(name)), nil
}

func (c *FakeCipher) DecryptName(name string) (string, error) {
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(name))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func (c *FakeCipher) EncryptingReader(r io.Reader) (io.Reader, error) {
	return r, nil
}

func (c *FakeCipher) DecryptingReader(r io.Reader) (io.Reader, error) {
	return r, nil
}

func (c *FakeCipher) EncryptedSize(decryptedSize int64) int64 {
	return decryptedSize + c.Overhead
}

func (c *FakeCipher) DecryptedSize(encryptedSize int64) int64 {
	if encryptedSize < c.Overhead {
		return 0
	}

	return encryptedSize - c.Overhead
}
