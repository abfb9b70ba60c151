package processor

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/instruction"
	"github.com/blockberries/pollberry/state"
	"github.com/blockberries/pollberry/types"
)

// PollProgram executes CreatePoll, EditPoll and Vote. It holds no mutable
// state; every call reads and writes accounts through the Runtime it is given.
type PollProgram struct {
	id  types.Address
	log *logrus.Entry
}

// NewPollProgram creates the poll program bound to id. A nil logger uses the
// logrus standard logger.
func NewPollProgram(id types.Address, logger *logrus.Logger) *PollProgram {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PollProgram{
		id:  id,
		log: logger.WithFields(logrus.Fields{"module": "processor", "program": "poll"}),
	}
}

// ID returns the program id accounts are derived under
func (p *PollProgram) ID() types.Address {
	return p.id
}

// Process decodes data and applies it on behalf of signer. The signer has
// already been authenticated by the ledger. On any error the ledger must
// discard every write made during the call.
func (p *PollProgram) Process(rt Runtime, signer types.PublicKey, data []byte) error {
	ix, err := instruction.Decode(data)
	if err != nil {
		p.log.WithError(err).Debug("undecodable instruction")
		return err
	}

	switch ix := ix.(type) {
	case instruction.CreatePoll:
		err = p.createPoll(rt, signer, ix)
	case instruction.EditPoll:
		err = p.editPoll(rt, signer, ix)
	case instruction.Vote:
		err = p.vote(rt, signer, ix)
	default:
		err = fmt.Errorf("unhandled instruction %T", ix)
	}

	entry := p.log.WithFields(logrus.Fields{
		"instruction": fmt.Sprintf("%T", ix),
		"signer":      signer.String(),
	})
	if err != nil {
		entry.WithError(err).Debug("instruction rejected")
		return err
	}
	entry.Debug("instruction applied")
	return nil
}

func (p *PollProgram) createPoll(rt Runtime, signer types.PublicKey, ix instruction.CreatePoll) error {
	addr := types.PollAddress(p.id, ix.Name)

	data, err := readOrAllocate(rt, addr, state.PollSpace)
	if err != nil {
		return err
	}
	var current state.Poll
	if err := current.UnmarshalBinary(data); err != nil {
		return err
	}
	if current.IsInitialized() {
		return fmt.Errorf("%w: %q", ErrPollAlreadyExists, ix.Name)
	}

	poll, err := state.NewPoll(ix.Name, ix.Description, ix.ClosesAt, ix.Candidates, signer)
	if err != nil {
		return err
	}
	return writeRecord(rt, addr, poll)
}

func (p *PollProgram) editPoll(rt Runtime, signer types.PublicKey, ix instruction.EditPoll) error {
	addr := types.PollAddress(p.id, ix.Name)

	poll, err := loadPoll(rt, addr)
	if err != nil {
		return err
	}
	if poll.Authority != signer {
		return ErrUnauthorized
	}

	poll.Edit(ix.ClosesAt)
	return writeRecord(rt, addr, poll)
}

// vote checks, in order: receipt unset, poll open, candidate present. The
// receipt is only written after the poll write has gone through.
func (p *PollProgram) vote(rt Runtime, signer types.PublicKey, ix instruction.Vote) error {
	pollAddr := types.PollAddress(p.id, ix.PollName)
	poll, err := loadPoll(rt, pollAddr)
	if err != nil {
		return err
	}

	voterAddr := types.VoterAddress(p.id, pollAddr, signer)
	data, err := readOrAllocate(rt, voterAddr, state.VoterSpace)
	if err != nil {
		return err
	}
	var voter state.Voter
	if err := voter.UnmarshalBinary(data); err != nil {
		return err
	}

	if voter.HasVoted() {
		return ErrAlreadyVoted
	}
	if !poll.IsOpen(rt.Now()) {
		return fmt.Errorf("%w: closed at %d", ErrVotingEnded, poll.ClosesAt)
	}
	if err := poll.Vote(ix.Candidate); err != nil {
		return err
	}

	if err := writeRecord(rt, pollAddr, poll); err != nil {
		return err
	}
	voter.Record(signer)
	return writeRecord(rt, voterAddr, &voter)
}

func loadPoll(rt Runtime, addr types.Address) (*state.Poll, error) {
	data, err := rt.Read(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPollNotInitialized, addr)
	}
	if err != nil {
		return nil, err
	}

	var poll state.Poll
	if err := poll.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if !poll.IsInitialized() {
		return nil, fmt.Errorf("%w: %s", ErrPollNotInitialized, addr)
	}
	return &poll, nil
}

type record interface {
	MarshalBinary() ([]byte, error)
}

func writeRecord(rt Runtime, addr types.Address, r record) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return rt.Write(addr, data)
}
