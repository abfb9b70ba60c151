package state

import "fmt"

// CandidateNameMaxLen bounds a candidate name in bytes
const CandidateNameMaxLen = 32

// CandidateSpace is the encoded size of one candidate at full capacity
const CandidateSpace = 4 + CandidateNameMaxLen + 8

// Candidate is one selectable option embedded in a Poll.
type Candidate struct {
	Name      string
	VoteCount uint64
}

// NewCandidate creates a candidate with zero votes
func NewCandidate(name string) (Candidate, error) {
	if name == "" || len(name) > CandidateNameMaxLen {
		return Candidate{}, fmt.Errorf("%w: %q", ErrInvalidCandidateName, name)
	}
	return Candidate{Name: name}, nil
}

func (c *Candidate) vote() {
	c.VoteCount++
}
