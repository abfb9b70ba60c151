package types

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the size of an account address in bytes
const AddressSize = 32

// Address locates one account's storage slot. Program ids are addresses too.
type Address [AddressSize]byte

// PublicKey is an ed25519 public key identifying a signer.
type PublicKey [PublicKeySize]byte

// NewAddress creates an Address from bytes, returning error if invalid.
func NewAddress(data []byte) (Address, error) {
	var a Address
	if len(data) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
	}
	copy(a[:], data)
	return a, nil
}

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	return NewAddress(data)
}

// String returns the base58 form
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero returns true for the all-zero address
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// NewPublicKey creates a PublicKey from bytes, returning error if invalid.
func NewPublicKey(data []byte) (PublicKey, error) {
	var p PublicKey
	if len(data) != PublicKeySize {
		return p, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copy(p[:], data)
	return p, nil
}

// MustNewPublicKey creates a PublicKey, panicking if invalid.
// Use only for trusted internal data.
func MustNewPublicKey(data []byte) PublicKey {
	p, err := NewPublicKey(data)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid base58 public key %q: %w", s, err)
	}
	return NewPublicKey(data)
}

// String returns the base58 form
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero returns true for the unset key
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// VerifySignature verifies an Ed25519 signature
func VerifySignature(pubKey PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(pubKey[:], message, sig[:])
}
