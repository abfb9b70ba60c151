package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/wal"
)

// ReplayResult contains the result of a WAL replay
type ReplayResult struct {
	// Transactions read from the WAL
	Transactions int
	// Executed counts the transactions the store did not hold yet
	Executed int
	LastSlot uint64
	// EndSlot markers seen; a Tx without its marker was still replayed.
	EndSlots int
	// StoreSlot is the store's last committed slot before the replay
	StoreSlot uint64
}

// Recover brings the store up to date with the WAL before Start. Reading
// begins just after the EndSlot marker of the store's last committed slot,
// or at the oldest retained segment when that marker is not found.
func (e *Engine) Recover(ctx context.Context) (*ReplayResult, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		return nil, ErrAlreadyStarted
	}

	if err := e.wal.Start(); err != nil {
		return nil, fmt.Errorf("failed to start WAL: %w", err)
	}
	last, err := e.store.LastSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplayFailed, err)
	}

	var r wal.Reader
	if last > 0 {
		var found bool
		r, found, err = e.wal.SearchForEndSlot(last)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReplayFailed, err)
		}
		if found {
			e.log.WithField("slot", last).Debug("resuming WAL after the store's last slot")
		}
	}
	if r == nil {
		if r, err = e.wal.OpenReader(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReplayFailed, err)
		}
	}
	defer r.Close()

	return e.Replay(ctx, r)
}

// Replay reads r to the end. Transactions in slots the store has already
// committed are skipped; every later one runs at its logged time and must
// succeed again, a divergence stops the replay with ErrReplayFailed. The
// engine must be stopped, so nothing is written to the WAL while it is read.
func (e *Engine) Replay(ctx context.Context, r wal.Reader) (*ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil, ErrAlreadyStarted
	}

	storeSlot, err := e.store.LastSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplayFailed, err)
	}
	if storeSlot > e.slot {
		e.slot = storeSlot
	}

	result := &ReplayResult{StoreSlot: storeSlot, LastSlot: e.slot}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		msg, err := r.Read()
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// torn tail from a crash mid-write; FileWAL.Start truncates it
			e.log.WithField("slot", e.slot).Warn("WAL ends in a partial entry")
			break
		}
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrReplayFailed, err)
		}

		switch msg.Type {
		case wal.MsgTypeTx:
			result.Transactions++
			if msg.Slot > storeSlot {
				if err := e.replayTx(ctx, msg); err != nil {
					return result, err
				}
				result.Executed++
			}
		case wal.MsgTypeEndSlot:
			result.EndSlots++
		default:
			// unknown types are skipped for forward compatibility
			continue
		}

		if msg.Slot > e.slot {
			e.slot = msg.Slot
		}
		result.LastSlot = e.slot
	}

	e.log.WithFields(logrus.Fields{
		"transactions": result.Transactions,
		"executed":     result.Executed,
		"store_slot":   storeSlot,
		"slot":         result.LastSlot,
	}).Info("WAL replay complete")
	return result, nil
}

func (e *Engine) replayTx(ctx context.Context, msg *wal.Message) error {
	tx, err := wal.DecodeTx(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: slot %d: %v", ErrReplayFailed, msg.Slot, err)
	}
	hash := tx.Hash()

	changes, err := e.execute(ctx, tx, msg.Time)
	if err != nil {
		return fmt.Errorf("%w: slot %d tx %s: %v", ErrReplayFailed, msg.Slot, hash, err)
	}
	batch := &Batch{Slot: msg.Slot, TxHash: hash, Accounts: changes}
	if err := e.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("%w: slot %d: %v", ErrReplayFailed, msg.Slot, err)
	}

	e.log.WithFields(logrus.Fields{
		"slot": msg.Slot,
		"tx":   hash.String(),
	}).Debug("replayed transaction")
	return nil
}
