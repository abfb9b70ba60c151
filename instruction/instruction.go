// Package instruction defines the instructions accepted by the poll and tally
// programs, their wire encoding, and the account addresses each one touches.
//
// The wire form is a one-byte tag followed by the variant's fields in
// declaration order, using the codec layout. Decoding consumes the input
// exactly; unknown tags and trailing bytes fail with codec.ErrMalformedRecord.
//
// Poll program tags:
//
//	0 CreatePoll{name, description, closes_at, candidates}
//	1 EditPoll{name, closes_at}
//	2 Vote{poll_name, candidate}
//
// Tally program tags:
//
//	0 CreateTally{label, rent}
//	1 CastChoice{label, choice}
package instruction

import (
	"fmt"

	"github.com/blockberries/pollberry/codec"
	"github.com/blockberries/pollberry/types"
)

// Tag discriminates the variants of a program's instruction union.
type Tag uint8

// Poll program tags
const (
	TagCreatePoll Tag = 0
	TagEditPoll   Tag = 1
	TagVote       Tag = 2
)

// Instruction is one poll program request.
type Instruction interface {
	Tag() Tag
	// Accounts returns the addresses the instruction reads or writes, in the
	// order the processor touches them.
	Accounts(program types.Address, signer types.PublicKey) []types.Address
	encode(enc *codec.Encoder)
}

// CreatePoll claims the poll slot derived from Name.
type CreatePoll struct {
	Name        string
	Description string
	ClosesAt    uint64
	Candidates  []string
}

// EditPoll replaces the closing time of an existing poll.
type EditPoll struct {
	Name     string
	ClosesAt uint64
}

// Vote casts the signer's single vote in a poll.
type Vote struct {
	PollName  string
	Candidate string
}

func (CreatePoll) Tag() Tag { return TagCreatePoll }
func (EditPoll) Tag() Tag   { return TagEditPoll }
func (Vote) Tag() Tag       { return TagVote }

func (ix CreatePoll) Accounts(program types.Address, _ types.PublicKey) []types.Address {
	return []types.Address{types.PollAddress(program, ix.Name)}
}

func (ix EditPoll) Accounts(program types.Address, _ types.PublicKey) []types.Address {
	return []types.Address{types.PollAddress(program, ix.Name)}
}

func (ix Vote) Accounts(program types.Address, signer types.PublicKey) []types.Address {
	poll := types.PollAddress(program, ix.PollName)
	return []types.Address{poll, types.VoterAddress(program, poll, signer)}
}

func (ix CreatePoll) encode(enc *codec.Encoder) {
	enc.PutString(ix.Name)
	enc.PutString(ix.Description)
	enc.PutU64(ix.ClosesAt)
	enc.PutSeqLen(len(ix.Candidates))
	for _, c := range ix.Candidates {
		enc.PutString(c)
	}
}

func (ix EditPoll) encode(enc *codec.Encoder) {
	enc.PutString(ix.Name)
	enc.PutU64(ix.ClosesAt)
}

func (ix Vote) encode(enc *codec.Encoder) {
	enc.PutString(ix.PollName)
	enc.PutString(ix.Candidate)
}

// Encode returns the wire form of ix
func Encode(ix Instruction) []byte {
	enc := codec.NewEncoder(64)
	enc.PutU8(uint8(ix.Tag()))
	ix.encode(enc)
	return enc.Bytes()
}

// Decode parses a poll program instruction
func Decode(data []byte) (Instruction, error) {
	if len(data) > types.MaxTxDataSize {
		return nil, fmt.Errorf("%w: instruction is %d bytes", codec.ErrMalformedRecord, len(data))
	}
	dec := codec.NewDecoder(data)
	tag := Tag(dec.U8())
	if err := dec.Err(); err != nil {
		return nil, err
	}

	var ix Instruction
	switch tag {
	case TagCreatePoll:
		var c CreatePoll
		c.Name = dec.String(types.MaxTxDataSize)
		c.Description = dec.String(types.MaxTxDataSize)
		c.ClosesAt = dec.U64()
		n := dec.SeqLen(types.MaxTxDataSize / codec.LengthPrefixSize)
		c.Candidates = make([]string, 0, n)
		for i := 0; i < n && dec.Err() == nil; i++ {
			c.Candidates = append(c.Candidates, dec.String(types.MaxTxDataSize))
		}
		ix = c
	case TagEditPoll:
		var e EditPoll
		e.Name = dec.String(types.MaxTxDataSize)
		e.ClosesAt = dec.U64()
		ix = e
	case TagVote:
		var v Vote
		v.PollName = dec.String(types.MaxTxDataSize)
		v.Candidate = dec.String(types.MaxTxDataSize)
		ix = v
	default:
		return nil, fmt.Errorf("%w: unknown instruction tag %d", codec.ErrMalformedRecord, tag)
	}

	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Built is an encoded instruction together with the addresses it touches, so
// a submitter can name every account before contacting storage.
type Built struct {
	Program  types.Address
	Data     []byte
	Accounts []types.Address
}

// Build encodes ix for program and derives its accounts for signer
func Build(program types.Address, signer types.PublicKey, ix Instruction) Built {
	return Built{
		Program:  program,
		Data:     Encode(ix),
		Accounts: ix.Accounts(program, signer),
	}
}
