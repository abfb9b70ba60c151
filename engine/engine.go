package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/processor"
	"github.com/blockberries/pollberry/types"
	"github.com/blockberries/pollberry/wal"
)

// Program is an executable program registered with the engine
type Program interface {
	ID() types.Address
	Process(rt processor.Runtime, signer types.PublicKey, data []byte) error
}

// Receipt describes one committed transaction
type Receipt struct {
	ID       uuid.UUID
	TxHash   types.Hash
	Slot     uint64
	Time     uint64
	Program  types.Address
	Accounts []types.Address
}

// Engine is the reference ledger. It authenticates transactions, runs them
// one at a time against a per-transaction overlay, logs them to the WAL and
// commits the touched accounts to the store.
type Engine struct {
	mu sync.Mutex

	config *Config
	store  AccountStore
	wal    wal.WAL
	clock  Clock
	log    *logrus.Entry

	flusher *walFlusher

	programs map[types.Address]Program
	slot     uint64

	// pending is a logged batch the store has not accepted yet
	pending *Batch
	// halted is the WAL error that stopped the engine
	halted error

	started bool
}

// NewEngine creates an engine running the poll and tally programs named in
// config. A nil WAL disables logging; a nil clock uses SystemClock.
func NewEngine(
	config *Config,
	store AccountStore,
	w wal.WAL,
	clock Clock,
	logger *logrus.Logger,
) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if w == nil {
		w = &wal.NopWAL{}
	}
	if clock == nil {
		clock = SystemClock{}
	}

	e := &Engine{
		config:   config,
		store:    store,
		wal:      w,
		clock:    clock,
		log:      logger.WithFields(logrus.Fields{"module": "engine", "chain_id": config.ChainID}),
		programs: make(map[types.Address]Program),
	}
	e.flusher = newWALFlusher(w, config.WALFlushInterval, e.log)
	e.RegisterProgram(processor.NewPollProgram(config.PollProgramID(), logger))
	e.RegisterProgram(processor.NewTallyProgram(config.TallyProgramID(), logger))
	return e
}

// RegisterProgram adds or replaces a program
func (e *Engine) RegisterProgram(p Program) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[p.ID()] = p
}

// Start starts the WAL, and the background flush when WALSync is off. Slot
// numbering resumes after the last slot the WAL recorded.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	if err := e.wal.Start(); err != nil {
		return fmt.Errorf("failed to start WAL: %w", err)
	}
	if lw, ok := e.wal.(interface{ LastEndSlot() (uint64, bool) }); ok {
		if last, found := lw.LastEndSlot(); found && last > e.slot {
			e.slot = last
		}
	}

	if !e.config.WALSync {
		e.flusher.Start()
	}

	e.started = true
	e.log.WithField("slot", e.slot).Info("engine started")
	return nil
}

// Stop stops the background flush and the WAL. A batch still pending is
// tried once more; if the store refuses it, the next Recover applies it from
// the WAL.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}
	e.started = false

	if err := e.commitPending(); err != nil {
		e.log.WithError(err).Warn("stopping with an uncommitted slot")
	}
	e.flusher.Stop()
	if err := e.wal.Stop(); err != nil {
		return fmt.Errorf("failed to stop WAL: %w", err)
	}
	return nil
}

// Submit authenticates and executes tx. A rejected transaction writes
// nothing; the returned error carries the program error code, see
// processor.ErrorCode.
//
// Once the transaction is in the WAL it is committed: it owns its slot and
// hash even if the store then refuses the batch. Such a batch is kept
// pending and retried before the next transaction runs; until it lands,
// Submit fails with ErrStoreCommit. A WAL write failure halts the engine.
func (e *Engine) Submit(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Verify(e.config.ChainID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil, ErrNotStarted
	}
	if e.halted != nil {
		return nil, fmt.Errorf("%w: %v", ErrHalted, e.halted)
	}
	if err := e.commitPending(); err != nil {
		return nil, err
	}

	hash := tx.Hash()
	dup, err := e.store.HasTx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTx, hash)
	}

	now := e.clock.Now()
	changes, err := e.execute(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	slot := e.slot + 1
	if err := e.logTx(slot, now, tx); err != nil {
		// part of the entry may be on disk, so the slot stays used
		e.slot = slot
		e.halted = err
		e.log.WithError(err).WithField("slot", slot).Error("WAL write failed, halting")
		return nil, err
	}
	e.slot = slot

	batch := &Batch{Slot: slot, TxHash: hash, Accounts: changes}
	// the entry is logged; a client hanging up must not abort the commit
	if err := e.store.Commit(context.WithoutCancel(ctx), batch); err != nil {
		e.pending = batch
		e.log.WithError(err).WithField("slot", slot).Error("store commit failed after WAL write")
		return nil, fmt.Errorf("%w: slot %d is logged and will be committed once the store recovers: %v", ErrStoreCommit, slot, err)
	}
	e.checkpoint(slot)

	receipt := &Receipt{
		ID:       uuid.New(),
		TxHash:   hash,
		Slot:     slot,
		Time:     now,
		Program:  tx.Program,
		Accounts: make([]types.Address, len(changes)),
	}
	for i, acc := range changes {
		receipt.Accounts[i] = acc.Address
	}

	e.log.WithFields(logrus.Fields{
		"slot":     slot,
		"tx":       hash.String(),
		"signer":   tx.Signer.String(),
		"accounts": len(changes),
	}).Info("committed transaction")
	return receipt, nil
}

// commitPending retries the batch a failed commit left behind
func (e *Engine) commitPending() error {
	if e.pending == nil {
		return nil
	}
	batch := e.pending
	if err := e.store.Commit(context.Background(), batch); err != nil {
		return fmt.Errorf("%w: slot %d still pending: %v", ErrStoreCommit, batch.Slot, err)
	}
	e.pending = nil
	e.log.WithField("slot", batch.Slot).Info("committed pending slot")
	e.checkpoint(batch.Slot)
	return nil
}

// checkpoint lets the WAL drop segments older than the retention window
func (e *Engine) checkpoint(slot uint64) {
	retain := e.config.WALRetainSlots
	if retain == 0 || slot <= retain {
		return
	}
	if err := e.wal.Checkpoint(slot - retain); err != nil {
		e.log.WithError(err).WithField("slot", slot-retain).Warn("WAL checkpoint failed")
	}
}

// execute runs tx at time now and returns the accounts to commit
func (e *Engine) execute(ctx context.Context, tx *types.Transaction, now uint64) ([]*Account, error) {
	program, ok := e.programs[tx.Program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, tx.Program)
	}

	rt := newOverlay(ctx, e.store, tx.Program, now, e.config.MinimumBalance)
	if err := program.Process(rt, tx.Signer, tx.Data); err != nil {
		return nil, err
	}
	return rt.changes(), nil
}

func (e *Engine) logTx(slot, now uint64, tx *types.Transaction) error {
	msg, err := wal.NewTxMessage(slot, now, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWALWrite, err)
	}
	if err := e.wal.Write(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrWALWrite, err)
	}

	end := wal.NewEndSlotMessage(slot, now)
	if e.config.WALSync {
		err = e.wal.WriteSync(end)
	} else {
		err = e.wal.Write(end)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWALWrite, err)
	}
	return nil
}

// Account returns the stored account at addr
func (e *Engine) Account(ctx context.Context, addr types.Address) (*Account, error) {
	return e.store.Get(ctx, addr)
}

// MinimumBalance returns the rent-exempt balance for size bytes
func (e *Engine) MinimumBalance(size int) uint64 {
	return e.config.MinimumBalance(size)
}

// Pending reports whether a logged slot is waiting for the store
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Slot returns the last committed slot
func (e *Engine) Slot() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot
}

// ChainID returns the chain ID
func (e *Engine) ChainID() string {
	return e.config.ChainID
}

// PollProgramID returns the id of the registered poll program
func (e *Engine) PollProgramID() types.Address {
	return e.config.PollProgramID()
}

// TallyProgramID returns the id of the registered tally program
func (e *Engine) TallyProgramID() types.Address {
	return e.config.TallyProgramID()
}

// Now returns the ledger clock
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}
