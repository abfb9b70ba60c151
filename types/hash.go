package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the expected size of a hash in bytes
const HashSize = 32

// SignatureSize is the expected size of a signature in bytes
const SignatureSize = 64

// PublicKeySize is the expected size of a public key in bytes
const PublicKeySize = 32

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

// Signature is an ed25519 signature.
type Signature [SignatureSize]byte

// NewHash creates a Hash from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewHash(data []byte) (Hash, error) {
	var h Hash
	if len(data) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	copy(h[:], data)
	return h, nil
}

// MustNewHash creates a Hash, panicking if invalid.
// Use only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes SHA-256 hash of data
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// IsZero returns true if all bytes are zero
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns hex-encoded hash
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// NewSignature creates a Signature from bytes, returning error if invalid.
func NewSignature(data []byte) (Signature, error) {
	var s Signature
	if len(data) != SignatureSize {
		return s, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	copy(s[:], data)
	return s, nil
}

// MustNewSignature creates a Signature, panicking if invalid.
// Use only for trusted internal data (e.g., crypto library output).
func MustNewSignature(data []byte) Signature {
	s, err := NewSignature(data)
	if err != nil {
		panic(err)
	}
	return s
}

// IsZero returns true for an unsigned (all-zero) signature
func (s Signature) IsZero() bool {
	return s == Signature{}
}
