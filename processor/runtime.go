package processor

import (
	"errors"

	"github.com/blockberries/pollberry/types"
)

// Storage errors a Runtime reports
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInUse     = errors.New("account already allocated")
	ErrOwnerMismatch    = errors.New("account owner mismatch")
	ErrAccountSize      = errors.New("account size mismatch")
	ErrInsufficientRent = errors.New("insufficient balance for storage")
)

// Runtime is the ledger as seen by a program while one instruction executes.
// Every write is buffered by the ledger and only becomes visible if Process
// returns nil.
type Runtime interface {
	// Read returns the account data at addr. It fails with ErrAccountNotFound
	// for an unallocated address and ErrOwnerMismatch for an account owned by
	// another program.
	Read(addr types.Address) ([]byte, error)

	// Allocate creates a zero-filled account of size bytes owned by the
	// executing program, funded with minBalance.
	Allocate(addr types.Address, size int, minBalance uint64) error

	// Write replaces the account data. The length must match the allocation.
	Write(addr types.Address, data []byte) error

	// Now returns the ledger clock in unix seconds.
	Now() uint64

	// MinimumBalance returns the balance required to keep size bytes stored.
	MinimumBalance(size int) uint64
}

// readOrAllocate returns the account data at addr, allocating a zero-filled
// account first if the address is unused.
func readOrAllocate(rt Runtime, addr types.Address, size int) ([]byte, error) {
	data, err := rt.Read(addr)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	if err := rt.Allocate(addr, size, rt.MinimumBalance(size)); err != nil {
		return nil, err
	}
	return rt.Read(addr)
}
