package processor

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/instruction"
	"github.com/blockberries/pollberry/state"
	"github.com/blockberries/pollberry/types"
)

// TallyProgram is the two-counter variant: CreateTally claims a slot and
// CastChoice increments one of its counters. There is no voter receipt and no
// closing time.
type TallyProgram struct {
	id  types.Address
	log *logrus.Entry
}

// NewTallyProgram creates the tally program bound to id
func NewTallyProgram(id types.Address, logger *logrus.Logger) *TallyProgram {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TallyProgram{
		id:  id,
		log: logger.WithFields(logrus.Fields{"module": "processor", "program": "tally"}),
	}
}

// ID returns the program id accounts are derived under
func (p *TallyProgram) ID() types.Address {
	return p.id
}

// Process decodes data and applies it
func (p *TallyProgram) Process(rt Runtime, signer types.PublicKey, data []byte) error {
	ix, err := instruction.DecodeTally(data)
	if err != nil {
		p.log.WithError(err).Debug("undecodable instruction")
		return err
	}

	switch ix := ix.(type) {
	case instruction.CreateTally:
		err = p.createTally(rt, ix)
	case instruction.CastChoice:
		err = p.castChoice(rt, ix)
	default:
		err = fmt.Errorf("unhandled instruction %T", ix)
	}

	if err != nil {
		p.log.WithError(err).WithField("signer", signer.String()).Debug("instruction rejected")
	}
	return err
}

func (p *TallyProgram) createTally(rt Runtime, ix instruction.CreateTally) error {
	addr := types.TallyAddress(p.id, ix.Label)

	data, err := rt.Read(addr)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		if err := rt.Allocate(addr, state.TallySpace, ix.Rent); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		var current state.Tally
		if err := current.UnmarshalBinary(data); err != nil {
			return err
		}
		if current.IsInitialized() {
			return fmt.Errorf("%w: tally %q", ErrPollAlreadyExists, ix.Label)
		}
	}

	return writeRecord(rt, addr, state.NewTally())
}

func (p *TallyProgram) castChoice(rt Runtime, ix instruction.CastChoice) error {
	addr := types.TallyAddress(p.id, ix.Label)

	data, err := rt.Read(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: tally %q", ErrPollNotInitialized, ix.Label)
	}
	if err != nil {
		return err
	}

	var tally state.Tally
	if err := tally.UnmarshalBinary(data); err != nil {
		return err
	}
	if !tally.IsInitialized() {
		return fmt.Errorf("%w: tally %q", ErrPollNotInitialized, ix.Label)
	}
	if err := tally.Cast(ix.Choice); err != nil {
		return err
	}
	return writeRecord(rt, addr, &tally)
}
