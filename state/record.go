package state

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/blockberries/pollberry/codec"
)

// DiscriminatorSize is the header that opens every record. It is all zero
// until the record is initialized.
const DiscriminatorSize = 8

// Discriminator identifies the entity type stored in a record.
type Discriminator [DiscriminatorSize]byte

func newDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	PollDiscriminator  = newDiscriminator("Poll")
	VoterDiscriminator = newDiscriminator("Voter")
	TallyDiscriminator = newDiscriminator("Tally")
)

// readHeader checks that data is exactly space bytes and reports whether the
// record is initialized. An all-zero record is uninitialized; any header other
// than zero or want is malformed.
func readHeader(data []byte, space int, want Discriminator) (*codec.Decoder, bool, error) {
	if len(data) != space {
		return nil, false, fmt.Errorf("%w: record is %d bytes, want %d", codec.ErrMalformedRecord, len(data), space)
	}
	var got Discriminator
	copy(got[:], data[:DiscriminatorSize])

	dec := codec.NewDecoder(data[DiscriminatorSize:])
	switch got {
	case want:
		return dec, true, nil
	case Discriminator{}:
		if !isZero(data) {
			return nil, false, fmt.Errorf("%w: uninitialized record has data", codec.ErrMalformedRecord)
		}
		return dec, false, nil
	default:
		return nil, false, fmt.Errorf("%w: unexpected discriminator %x", codec.ErrMalformedRecord, got[:])
	}
}

func isZero(data []byte) bool {
	return len(bytes.TrimLeft(data, "\x00")) == 0
}

// MarshalBinary encodes the poll into exactly PollSpace bytes.
// An Empty poll encodes as all zeros.
func (p *Poll) MarshalBinary() ([]byte, error) {
	if !p.initialized {
		return make([]byte, PollSpace), nil
	}
	enc := codec.NewEncoder(PollSpace)
	enc.PutFixed(PollDiscriminator[:])
	enc.PutString(p.Name)
	enc.PutString(p.Description)
	enc.PutU64(p.ClosesAt)
	enc.PutSeqLen(len(p.Candidates))
	for _, c := range p.Candidates {
		enc.PutString(c.Name)
		enc.PutU64(c.VoteCount)
	}
	enc.PutFixed(p.Authority[:])
	return enc.Padded(PollSpace)
}

// UnmarshalBinary decodes a PollSpace-byte record
func (p *Poll) UnmarshalBinary(data []byte) error {
	dec, initialized, err := readHeader(data, PollSpace, PollDiscriminator)
	if err != nil {
		return err
	}
	if !initialized {
		*p = Poll{}
		return nil
	}

	out := Poll{initialized: true}
	out.Name = dec.String(PollNameMaxLen)
	out.Description = dec.String(PollDescriptionMaxLen)
	out.ClosesAt = dec.U64()
	n := dec.SeqLen(PollCandidatesMaxLen)
	out.Candidates = make([]Candidate, 0, n)
	for i := 0; i < n && dec.Err() == nil; i++ {
		var c Candidate
		c.Name = dec.String(CandidateNameMaxLen)
		c.VoteCount = dec.U64()
		out.Candidates = append(out.Candidates, c)
	}
	dec.Fixed(out.Authority[:])
	if err := dec.FinishPadded(); err != nil {
		return err
	}

	*p = out
	return nil
}

// MarshalBinary encodes the voter receipt into exactly VoterSpace bytes
func (v *Voter) MarshalBinary() ([]byte, error) {
	if !v.voted {
		return make([]byte, VoterSpace), nil
	}
	enc := codec.NewEncoder(VoterSpace)
	enc.PutFixed(VoterDiscriminator[:])
	enc.PutFixed(v.ID[:])
	return enc.Padded(VoterSpace)
}

// UnmarshalBinary decodes a VoterSpace-byte record
func (v *Voter) UnmarshalBinary(data []byte) error {
	dec, initialized, err := readHeader(data, VoterSpace, VoterDiscriminator)
	if err != nil {
		return err
	}
	if !initialized {
		*v = Voter{}
		return nil
	}
	out := Voter{voted: true}
	dec.Fixed(out.ID[:])
	if err := dec.Finish(); err != nil {
		return err
	}
	*v = out
	return nil
}

// MarshalBinary encodes the tally into exactly TallySpace bytes
func (t *Tally) MarshalBinary() ([]byte, error) {
	if !t.initialized {
		return make([]byte, TallySpace), nil
	}
	enc := codec.NewEncoder(TallySpace)
	enc.PutFixed(TallyDiscriminator[:])
	enc.PutU64(t.GM)
	enc.PutU64(t.GN)
	return enc.Padded(TallySpace)
}

// UnmarshalBinary decodes a TallySpace-byte record
func (t *Tally) UnmarshalBinary(data []byte) error {
	dec, initialized, err := readHeader(data, TallySpace, TallyDiscriminator)
	if err != nil {
		return err
	}
	if !initialized {
		*t = Tally{}
		return nil
	}
	out := Tally{initialized: true}
	out.GM = dec.U64()
	out.GN = dec.U64()
	if err := dec.Finish(); err != nil {
		return err
	}
	*t = out
	return nil
}
