package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockberries/pollberry/processor"
	"github.com/blockberries/pollberry/types"
)

// overlay is the processor.Runtime for one transaction. Reads fall through
// to the store; allocations and writes stay in memory until the engine
// commits the dirty set.
type overlay struct {
	ctx     context.Context
	store   AccountStore
	program types.Address
	now     uint64
	rent    func(size int) uint64

	loaded map[types.Address]*Account
	dirty  []types.Address
}

func newOverlay(ctx context.Context, store AccountStore, program types.Address, now uint64, rent func(int) uint64) *overlay {
	return &overlay{
		ctx:     ctx,
		store:   store,
		program: program,
		now:     now,
		rent:    rent,
		loaded:  make(map[types.Address]*Account),
	}
}

func (o *overlay) lookup(addr types.Address) (*Account, error) {
	if acc, ok := o.loaded[addr]; ok {
		if acc == nil {
			return nil, processor.ErrAccountNotFound
		}
		return acc, nil
	}

	acc, err := o.store.Get(o.ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		o.loaded[addr] = nil
		return nil, processor.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	o.loaded[addr] = acc
	return acc, nil
}

func (o *overlay) owned(addr types.Address) (*Account, error) {
	acc, err := o.lookup(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != o.program {
		return nil, fmt.Errorf("%w: %s is owned by %s", processor.ErrOwnerMismatch, addr, acc.Owner)
	}
	return acc, nil
}

func (o *overlay) Read(addr types.Address) ([]byte, error) {
	acc, err := o.owned(addr)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), acc.Data...), nil
}

func (o *overlay) Allocate(addr types.Address, size int, minBalance uint64) error {
	_, err := o.lookup(addr)
	if err == nil {
		return fmt.Errorf("%w: %s", processor.ErrAccountInUse, addr)
	}
	if !errors.Is(err, processor.ErrAccountNotFound) {
		return err
	}
	if size <= 0 || size > MaxAccountSize {
		return fmt.Errorf("%w: cannot allocate %d bytes", processor.ErrAccountSize, size)
	}
	if need := o.MinimumBalance(size); minBalance < need {
		return fmt.Errorf("%w: %d < %d", processor.ErrInsufficientRent, minBalance, need)
	}

	o.loaded[addr] = &Account{
		Address: addr,
		Owner:   o.program,
		Balance: minBalance,
		Data:    make([]byte, size),
	}
	o.markDirty(addr)
	return nil
}

func (o *overlay) Write(addr types.Address, data []byte) error {
	acc, err := o.owned(addr)
	if err != nil {
		return err
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("%w: %d bytes into %d", processor.ErrAccountSize, len(data), len(acc.Data))
	}
	acc.Data = append(acc.Data[:0], data...)
	o.markDirty(addr)
	return nil
}

func (o *overlay) Now() uint64 {
	return o.now
}

func (o *overlay) MinimumBalance(size int) uint64 {
	return o.rent(size)
}

func (o *overlay) markDirty(addr types.Address) {
	for _, a := range o.dirty {
		if a == addr {
			return
		}
	}
	o.dirty = append(o.dirty, addr)
}

// changes returns the dirty accounts in first-touch order
func (o *overlay) changes() []*Account {
	out := make([]*Account, 0, len(o.dirty))
	for _, addr := range o.dirty {
		out = append(out, o.loaded[addr])
	}
	return out
}

var _ processor.Runtime = (*overlay)(nil)
