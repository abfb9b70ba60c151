package state

import "errors"

// Validation errors raised while building or mutating entities
var (
	ErrInvalidPollName        = errors.New("invalid poll name")
	ErrInvalidPollDescription = errors.New("invalid poll description")
	ErrInvalidCandidateName   = errors.New("invalid candidate name")
	ErrInvalidCandidatesCount = errors.New("invalid candidates count")
	ErrCandidateNotFound      = errors.New("candidate not found")
	ErrInvalidChoice          = errors.New("invalid choice")
)
