package state

import (
	"errors"
	"strings"
	"testing"

	"github.com/blockberries/pollberry/types"
)

func testAuthority() types.PublicKey {
	var k types.PublicKey
	k[0] = 0xa1
	return k
}

func TestNewPoll(t *testing.T) {
	p, err := NewPoll("Lang", "desc", 100, []string{"Rust", "Go"}, testAuthority())
	if err != nil {
		t.Fatalf("NewPoll failed: %v", err)
	}

	if !p.IsInitialized() {
		t.Error("created poll should be initialized")
	}
	if len(p.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(p.Candidates))
	}
	if p.Candidates[0] != (Candidate{Name: "Rust"}) || p.Candidates[1] != (Candidate{Name: "Go"}) {
		t.Errorf("unexpected candidates %+v", p.Candidates)
	}
	if p.Authority != testAuthority() {
		t.Error("authority not recorded")
	}
}

func TestNewPollEmptyDescriptionAndNoCandidates(t *testing.T) {
	p, err := NewPoll("Quiet", "", 0, nil, testAuthority())
	if err != nil {
		t.Fatalf("NewPoll failed: %v", err)
	}
	if !p.IsInitialized() {
		t.Error("poll with empty description is still initialized")
	}
}

func TestNewPollBounds(t *testing.T) {
	nine := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	eight := nine[:8]

	tests := []struct {
		name        string
		pollName    string
		description string
		candidates  []string
		want        error
	}{
		{"empty name", "", "d", eight, ErrInvalidPollName},
		{"33 byte name", strings.Repeat("x", 33), "d", eight, ErrInvalidPollName},
		{"65 byte description", "ok", strings.Repeat("d", 65), eight, ErrInvalidPollDescription},
		{"9 candidates", "ok", "d", nine, ErrInvalidCandidatesCount},
		{"empty candidate", "ok", "d", []string{"Rust", ""}, ErrInvalidCandidateName},
		{"33 byte candidate", "ok", "d", []string{strings.Repeat("c", 33)}, ErrInvalidCandidateName},
		{"name checked before description", "", strings.Repeat("d", 65), eight, ErrInvalidPollName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPoll(tt.pollName, tt.description, 1, tt.candidates, testAuthority())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Exact limits are accepted
	if _, err := NewPoll(strings.Repeat("x", 32), strings.Repeat("d", 64), 1, eight, testAuthority()); err != nil {
		t.Errorf("limits should be accepted: %v", err)
	}
}

func TestNewPollFirstBadCandidateWins(t *testing.T) {
	_, err := NewPoll("ok", "", 1, []string{"Rust", "", strings.Repeat("c", 40)}, testAuthority())
	if !errors.Is(err, ErrInvalidCandidateName) {
		t.Fatalf("expected ErrInvalidCandidateName, got %v", err)
	}
	if !strings.Contains(err.Error(), `""`) {
		t.Errorf("error should name the first offender, got %v", err)
	}
}

func TestPollVote(t *testing.T) {
	p, err := NewPoll("Lang", "desc", 100, []string{"Rust", "Go"}, testAuthority())
	if err != nil {
		t.Fatalf("NewPoll failed: %v", err)
	}

	if err := p.Vote("Go"); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	want := []Candidate{{Name: "Rust", VoteCount: 0}, {Name: "Go", VoteCount: 1}}
	for i, c := range want {
		if p.Candidates[i] != c {
			t.Errorf("candidate %d: expected %+v, got %+v", i, c, p.Candidates[i])
		}
	}

	if err := p.Vote("Java"); !errors.Is(err, ErrCandidateNotFound) {
		t.Fatalf("expected ErrCandidateNotFound, got %v", err)
	}
	if p.TotalVotes() != 1 {
		t.Errorf("failed vote changed counts: total %d", p.TotalVotes())
	}

	// Match is exact
	if err := p.Vote("go"); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("case-different name should not match, got %v", err)
	}
}

func TestPollIsOpenBoundary(t *testing.T) {
	p, _ := NewPoll("Lang", "", 100, []string{"Rust"}, testAuthority())

	if !p.IsOpen(99) {
		t.Error("poll should be open before closes_at")
	}
	if !p.IsOpen(100) {
		t.Error("poll should be open at closes_at")
	}
	if p.IsOpen(101) {
		t.Error("poll should be closed after closes_at")
	}
}

func TestPollEdit(t *testing.T) {
	p, _ := NewPoll("Lang", "desc", 100, []string{"Rust", "Go"}, testAuthority())
	_ = p.Vote("Rust")
	name, desc, first := p.Name, p.Description, p.Candidates[0]

	p.Edit(500)
	if p.ClosesAt != 500 {
		t.Errorf("expected closes_at 500, got %d", p.ClosesAt)
	}
	if p.Name != name || p.Description != desc || p.Candidates[0] != first {
		t.Error("edit touched fields other than closes_at")
	}

	// Earlier time is accepted too
	p.Edit(1)
	if p.IsOpen(2) {
		t.Error("edited poll should close at the new time")
	}
}

func TestVoterRecord(t *testing.T) {
	var v Voter
	if v.HasVoted() {
		t.Fatal("zero voter should be unset")
	}

	id := testAuthority()
	if !v.Record(id) {
		t.Fatal("first record should succeed")
	}
	if !v.HasVoted() || v.ID != id {
		t.Error("receipt not written")
	}

	var other types.PublicKey
	other[0] = 0xb2
	if v.Record(other) {
		t.Error("second record should be refused")
	}
	if v.ID != id {
		t.Error("refused record changed the id")
	}
}

func TestTallyCast(t *testing.T) {
	tally := NewTally()
	if err := tally.Cast(ChoiceGM); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	_ = tally.Cast(ChoiceGN)
	_ = tally.Cast(ChoiceGN)

	if tally.GM != 1 || tally.GN != 2 {
		t.Errorf("expected 1/2, got %d/%d", tally.GM, tally.GN)
	}
	if err := tally.Cast(Choice(7)); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("expected ErrInvalidChoice, got %v", err)
	}

	c, err := ParseChoice("gn")
	if err != nil || c != ChoiceGN {
		t.Errorf("ParseChoice(gn) = %v, %v", c, err)
	}
	if _, err := ParseChoice("maybe"); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("expected ErrInvalidChoice, got %v", err)
	}
}
