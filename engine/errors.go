package engine

import (
	"errors"

	"github.com/blockberries/pollberry/processor"
)

// Engine errors
var (
	ErrInvalidConfig  = errors.New("invalid engine config")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrUnknownProgram = errors.New("unknown program")
	ErrDuplicateTx    = errors.New("transaction already committed")
	ErrWALWrite       = errors.New("WAL write failed")
	ErrStoreCommit    = errors.New("account store commit failed")
	ErrReplayFailed   = errors.New("WAL replay failed")
	ErrHalted         = errors.New("engine halted after a WAL failure")
)

// ErrAccountNotFound is returned by stores for an unallocated address. It is
// the same value the processor runtime reports.
var ErrAccountNotFound = processor.ErrAccountNotFound
