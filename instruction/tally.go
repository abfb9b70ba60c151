package instruction

import (
	"fmt"

	"github.com/blockberries/pollberry/codec"
	"github.com/blockberries/pollberry/state"
	"github.com/blockberries/pollberry/types"
)

// Tally program tags
const (
	TagCreateTally Tag = 0
	TagCastChoice  Tag = 1
)

// TallyInstruction is one tally program request.
type TallyInstruction interface {
	Tag() Tag
	Accounts(program types.Address) []types.Address
	encode(enc *codec.Encoder)
}

// CreateTally allocates the tally slot for Label, funding it with Rent.
type CreateTally struct {
	Label string
	Rent  uint64
}

// CastChoice increments one counter of the tally for Label.
type CastChoice struct {
	Label  string
	Choice state.Choice
}

func (CreateTally) Tag() Tag { return TagCreateTally }
func (CastChoice) Tag() Tag  { return TagCastChoice }

func (ix CreateTally) Accounts(program types.Address) []types.Address {
	return []types.Address{types.TallyAddress(program, ix.Label)}
}

func (ix CastChoice) Accounts(program types.Address) []types.Address {
	return []types.Address{types.TallyAddress(program, ix.Label)}
}

func (ix CreateTally) encode(enc *codec.Encoder) {
	enc.PutString(ix.Label)
	enc.PutU64(ix.Rent)
}

func (ix CastChoice) encode(enc *codec.Encoder) {
	enc.PutString(ix.Label)
	enc.PutU8(uint8(ix.Choice))
}

// EncodeTally returns the wire form of ix
func EncodeTally(ix TallyInstruction) []byte {
	enc := codec.NewEncoder(32)
	enc.PutU8(uint8(ix.Tag()))
	ix.encode(enc)
	return enc.Bytes()
}

// DecodeTally parses a tally program instruction
func DecodeTally(data []byte) (TallyInstruction, error) {
	dec := codec.NewDecoder(data)
	tag := Tag(dec.U8())
	if err := dec.Err(); err != nil {
		return nil, err
	}

	var ix TallyInstruction
	switch tag {
	case TagCreateTally:
		var c CreateTally
		c.Label = dec.String(types.MaxTxDataSize)
		c.Rent = dec.U64()
		ix = c
	case TagCastChoice:
		var c CastChoice
		c.Label = dec.String(types.MaxTxDataSize)
		c.Choice = state.Choice(dec.U8())
		if dec.Err() == nil && !c.Choice.Valid() {
			return nil, fmt.Errorf("%w: choice %d", codec.ErrMalformedRecord, c.Choice)
		}
		ix = c
	default:
		return nil, fmt.Errorf("%w: unknown tally instruction tag %d", codec.ErrMalformedRecord, tag)
	}

	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return ix, nil
}
