package state

import (
	"fmt"

	"github.com/blockberries/pollberry/types"
)

// Poll bounds
const (
	PollNameMaxLen        = 32
	PollDescriptionMaxLen = 64
	PollCandidatesMaxLen  = 8
)

// PollSpace is the fixed size of a Poll record, header included
const PollSpace = DiscriminatorSize +
	4 + PollNameMaxLen +
	4 + PollDescriptionMaxLen +
	8 +
	4 + PollCandidatesMaxLen*CandidateSpace +
	types.PublicKeySize

// Poll is one voting round. The zero value is an Empty poll: a freshly
// allocated slot that no CreatePoll has claimed yet.
type Poll struct {
	Name        string
	Description string
	ClosesAt    uint64
	Candidates  []Candidate
	// Authority is the signer that created the poll.
	Authority types.PublicKey

	initialized bool
}

// NewPoll builds an Initialized poll. Checks run in a fixed order: name,
// description, candidate count, then each candidate name in input order.
// Candidate ordering follows the input.
func NewPoll(
	name string,
	description string,
	closesAt uint64,
	candidates []string,
	authority types.PublicKey,
) (*Poll, error) {
	if name == "" || len(name) > PollNameMaxLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPollName, len(name))
	}
	if len(description) > PollDescriptionMaxLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPollDescription, len(description))
	}
	if len(candidates) > PollCandidatesMaxLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidCandidatesCount, len(candidates), PollCandidatesMaxLen)
	}

	list := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		cand, err := NewCandidate(c)
		if err != nil {
			return nil, err
		}
		list = append(list, cand)
	}

	return &Poll{
		Name:        name,
		Description: description,
		ClosesAt:    closesAt,
		Candidates:  list,
		Authority:   authority,
		initialized: true,
	}, nil
}

// IsInitialized returns false for an Empty poll
func (p *Poll) IsInitialized() bool {
	return p.initialized
}

// Vote adds one vote to the first candidate named exactly candidate.
func (p *Poll) Vote(candidate string) error {
	for i := range p.Candidates {
		if p.Candidates[i].Name == candidate {
			p.Candidates[i].vote()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrCandidateNotFound, candidate)
}

// IsOpen reports whether voting is allowed at now. The boundary is inclusive.
func (p *Poll) IsOpen(now uint64) bool {
	return now <= p.ClosesAt
}

// Edit replaces the closing time. Authorization is the caller's job.
func (p *Poll) Edit(closesAt uint64) {
	p.ClosesAt = closesAt
}

// Candidate returns the named candidate, if present
func (p *Poll) Candidate(name string) (Candidate, bool) {
	for _, c := range p.Candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

// TotalVotes sums every candidate's tally
func (p *Poll) TotalVotes() uint64 {
	var total uint64
	for _, c := range p.Candidates {
		total += c.VoteCount
	}
	return total
}
