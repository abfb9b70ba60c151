package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/blockberries/pollberry/types"
)

// Account is one stored ledger account
type Account struct {
	Address types.Address
	Owner   types.Address
	Balance uint64
	Data    []byte
}

// Copy returns a deep copy
func (a *Account) Copy() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// Batch is what one transaction commits: the accounts it changed, tagged
// with its slot and hash.
type Batch struct {
	Slot     uint64
	TxHash   types.Hash
	Accounts []*Account
}

// AccountStore persists accounts. Commit applies a batch atomically: either
// every account, the hash and the slot are written or none is. The recorded
// hashes back duplicate protection, and LastSlot is where a restart resumes
// the WAL.
type AccountStore interface {
	Get(ctx context.Context, addr types.Address) (*Account, error)
	Commit(ctx context.Context, batch *Batch) error
	LastSlot(ctx context.Context) (uint64, error)
	HasTx(ctx context.Context, hash types.Hash) (bool, error)
	Close() error
}

// MemStore is an in-memory AccountStore
type MemStore struct {
	mu       sync.RWMutex
	accounts map[types.Address]*Account
	txs      map[types.Hash]uint64
	slot     uint64
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[types.Address]*Account),
		txs:      make(map[types.Hash]uint64),
	}
}

// Get returns a copy of the account at addr
func (s *MemStore) Get(ctx context.Context, addr types.Address) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Copy(), nil
}

// Commit stores copies of every account in batch
func (s *MemStore) Commit(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range batch.Accounts {
		s.accounts[acc.Address] = acc.Copy()
	}
	if !batch.TxHash.IsZero() {
		s.txs[batch.TxHash] = batch.Slot
	}
	if batch.Slot > s.slot {
		s.slot = batch.Slot
	}
	return nil
}

// LastSlot returns the highest committed slot
func (s *MemStore) LastSlot(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot, nil
}

// HasTx reports whether hash was committed
func (s *MemStore) HasTx(ctx context.Context, hash types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.txs[hash]
	return ok, nil
}

// Len returns the number of stored accounts
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Snapshot returns copies of every account ordered by address
func (s *MemStore) Snapshot() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc.Copy())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}

// Close is a no-op
func (s *MemStore) Close() error {
	return nil
}

var _ AccountStore = (*MemStore)(nil)
