package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// AddressKind tags the kind of entity an address is derived for. The tag is
// the first thing hashed, so equal key material under different kinds never
// yields the same address.
type AddressKind uint8

const (
	KindPoll AddressKind = iota + 1
	KindVoter
	KindTally
)

// derivationMarker closes every derivation preimage.
const derivationMarker = "ProgramDerivedAddress"

// Seed returns the byte tag hashed for the kind.
func (k AddressKind) Seed() []byte {
	switch k {
	case KindPoll:
		return []byte("poll")
	case KindVoter:
		return []byte("voter")
	case KindTally:
		return []byte("tally")
	default:
		panic(fmt.Sprintf("types: invalid address kind: %d", k))
	}
}

func (k AddressKind) String() string {
	switch k {
	case KindPoll:
		return "poll"
	case KindVoter:
		return "voter"
	case KindTally:
		return "tally"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DeriveAddress maps (program, kind, key parts) to a storage address.
//
// The preimage is seed ++ len(part) ++ part ... ++ program ++ marker, hashed
// with SHA-256. Each part is length-prefixed so ("ab", "c") and ("a", "bc")
// stay distinct. The function is pure: the same inputs always produce the same
// address, which is what lets callers locate an entity without an index.
func DeriveAddress(program Address, kind AddressKind, parts ...[]byte) Address {
	h := sha256.New()
	h.Write(kind.Seed())

	var lenBuf [4]byte
	for _, part := range parts {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(part)))
		h.Write(lenBuf[:])
		h.Write(part)
	}

	h.Write(program[:])
	h.Write([]byte(derivationMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// PollAddress returns the address of the poll with the given name.
func PollAddress(program Address, name string) Address {
	return DeriveAddress(program, KindPoll, []byte(name))
}

// VoterAddress returns the address of the voter receipt for voter in poll.
func VoterAddress(program Address, poll Address, voter PublicKey) Address {
	return DeriveAddress(program, KindVoter, poll[:], voter[:])
}

// TallyAddress returns the address of the two-counter tally with the given label.
func TallyAddress(program Address, label string) Address {
	return DeriveAddress(program, KindTally, []byte(label))
}

// ProgramID derives a stable program id from a human-readable name.
func ProgramID(name string) Address {
	return Address(HashBytes([]byte("program:" + name)))
}
