package processor

import (
	"errors"

	"github.com/blockberries/pollberry/codec"
	"github.com/blockberries/pollberry/state"
)

// State-conflict errors: the transition is illegal given persisted state
var (
	ErrPollAlreadyExists  = errors.New("poll already exists")
	ErrAlreadyVoted       = errors.New("already voted")
	ErrVotingEnded        = errors.New("voting ended")
	ErrUnauthorized       = errors.New("signer is not the poll authority")
	ErrPollNotInitialized = errors.New("poll not initialized")
)

// Kind groups rejections by who has to act on them
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation: the caller supplied out-of-bound or unresolvable input.
	KindValidation
	// KindStateConflict: a business rule forbids the transition right now.
	KindStateConflict
	// KindIntegrity: the ledger handed over data in an unexpected shape.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Program error codes. The first eight follow the on-chain program's error
// enum so existing clients keep decoding them.
const (
	CodePollAlreadyExists      uint32 = 6000
	CodeAlreadyVoted           uint32 = 6001
	CodeVotingEnded            uint32 = 6002
	CodeCandidateNotFound      uint32 = 6003
	CodeInvalidPollName        uint32 = 6004
	CodeInvalidPollDescription uint32 = 6005
	CodeInvalidCandidateName   uint32 = 6006
	CodeInvalidCandidatesCount uint32 = 6007
	CodeUnauthorized           uint32 = 6008
	CodePollNotInitialized     uint32 = 6009
	CodeMalformedRecord        uint32 = 6010
	CodeInvalidChoice          uint32 = 6011
	CodeAccountNotFound        uint32 = 6012
	CodeOwnerMismatch          uint32 = 6013
	CodeAccountSize            uint32 = 6014
	CodeInsufficientRent       uint32 = 6015
	CodeAccountInUse           uint32 = 6016
)

type errorInfo struct {
	err  error
	code uint32
	kind Kind
}

var errorTable = []errorInfo{
	{ErrPollAlreadyExists, CodePollAlreadyExists, KindStateConflict},
	{ErrAlreadyVoted, CodeAlreadyVoted, KindStateConflict},
	{ErrVotingEnded, CodeVotingEnded, KindStateConflict},
	{state.ErrCandidateNotFound, CodeCandidateNotFound, KindValidation},
	{state.ErrInvalidPollName, CodeInvalidPollName, KindValidation},
	{state.ErrInvalidPollDescription, CodeInvalidPollDescription, KindValidation},
	{state.ErrInvalidCandidateName, CodeInvalidCandidateName, KindValidation},
	{state.ErrInvalidCandidatesCount, CodeInvalidCandidatesCount, KindValidation},
	{ErrUnauthorized, CodeUnauthorized, KindStateConflict},
	{ErrPollNotInitialized, CodePollNotInitialized, KindStateConflict},
	{codec.ErrMalformedRecord, CodeMalformedRecord, KindIntegrity},
	{codec.ErrRecordOverflow, CodeMalformedRecord, KindIntegrity},
	{state.ErrInvalidChoice, CodeInvalidChoice, KindValidation},
	{ErrAccountNotFound, CodeAccountNotFound, KindIntegrity},
	{ErrOwnerMismatch, CodeOwnerMismatch, KindIntegrity},
	{ErrAccountSize, CodeAccountSize, KindIntegrity},
	{ErrInsufficientRent, CodeInsufficientRent, KindIntegrity},
	{ErrAccountInUse, CodeAccountInUse, KindIntegrity},
}

func lookup(err error) (errorInfo, bool) {
	for _, info := range errorTable {
		if errors.Is(err, info.err) {
			return info, true
		}
	}
	return errorInfo{}, false
}

// ErrorCode returns the program error code for err, or 0 if err is not a
// program rejection.
func ErrorCode(err error) uint32 {
	info, ok := lookup(err)
	if !ok {
		return 0
	}
	return info.code
}

// Classify returns the rejection kind of err
func Classify(err error) Kind {
	info, ok := lookup(err)
	if !ok {
		return KindUnknown
	}
	return info.kind
}

// IsRejection reports whether err is a terminal rejection produced by a
// program, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	_, ok := lookup(err)
	return ok
}
