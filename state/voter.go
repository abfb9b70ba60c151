package state

import "github.com/blockberries/pollberry/types"

// VoterSpace is the fixed size of a Voter record, header included
const VoterSpace = DiscriminatorSize + types.PublicKeySize

// Voter is the receipt proving one key voted in one poll. The zero value is
// Unset; Record moves it to Voted and nothing moves it back.
type Voter struct {
	ID types.PublicKey

	voted bool
}

// HasVoted returns true once the receipt is written
func (v *Voter) HasVoted() bool {
	return v.voted
}

// Record writes id into an Unset receipt. It returns false and leaves the
// receipt unchanged if it was already Voted.
func (v *Voter) Record(id types.PublicKey) bool {
	if v.voted {
		return false
	}
	v.ID = id
	v.voted = true
	return true
}
