package state

import "fmt"

// TallySpace is the fixed size of a Tally record, header included
const TallySpace = DiscriminatorSize + 8 + 8

// Choice is the closed two-valued ballot of a Tally.
type Choice uint8

const (
	ChoiceGM Choice = iota
	ChoiceGN
)

func (c Choice) String() string {
	switch c {
	case ChoiceGM:
		return "GM"
	case ChoiceGN:
		return "GN"
	default:
		return fmt.Sprintf("Choice(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the two choices
func (c Choice) Valid() bool {
	return c == ChoiceGM || c == ChoiceGN
}

// ParseChoice accepts "GM" or "GN"
func ParseChoice(s string) (Choice, error) {
	switch s {
	case "GM", "gm":
		return ChoiceGM, nil
	case "GN", "gn":
		return ChoiceGN, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
}

// Tally is the two-counter poll: every cast increments one counter, with no
// per-voter receipt and no closing time.
type Tally struct {
	GM uint64
	GN uint64

	initialized bool
}

// NewTally returns an Initialized tally at zero
func NewTally() *Tally {
	return &Tally{initialized: true}
}

// IsInitialized returns false for a freshly allocated slot
func (t *Tally) IsInitialized() bool {
	return t.initialized
}

// Cast increments the counter for c
func (t *Tally) Cast(c Choice) error {
	switch c {
	case ChoiceGM:
		t.GM++
	case ChoiceGN:
		t.GN++
	default:
		return fmt.Errorf("%w: %d", ErrInvalidChoice, uint8(c))
	}
	return nil
}
