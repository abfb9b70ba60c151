// Package processor executes decoded instructions against ledger accounts.
//
// A program sees the ledger only through Runtime: Read, Allocate, Write and
// the clock. The ledger owns atomicity; if Process returns an error every
// write made during the call is discarded.
//
// # Programs
//
// PollProgram handles the multi-candidate poll:
//
//	CreatePoll  claims the poll slot derived from the name (once only)
//	EditPoll    replaces closes_at, authority only
//	Vote        increments one candidate and writes the voter receipt
//
// TallyProgram handles the two-counter variant (CreateTally, CastChoice).
//
// # Errors
//
// Every rejection maps to a stable numeric code (ErrorCode) and a Kind
// (Classify): validation errors are the caller's input, state conflicts are
// business rules against persisted state, and integrity errors mean the
// ledger handed over data of an unexpected shape.
package processor
