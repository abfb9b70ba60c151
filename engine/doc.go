// Package engine implements the reference ledger the poll programs run on.
//
// The engine owns everything the programs leave to their host: signature
// checks, account storage, the clock, rent, and atomic commit.
//
// # Transaction Flow
//
//	Submit(tx)
//	  -> tx.Verify(chainID)              ed25519 over the sign bytes
//	  -> store.HasTx(hash)               duplicate check
//	  -> program.Process(overlay, ...)   reads fall through to the store
//	  -> WAL: Tx, EndSlot                synced when WALSync is set
//	  -> store.Commit(Batch)             accounts, hash and slot at once
//
// Submissions are serialized by a single mutex, so a program never observes
// a concurrent write. A rejected transaction leaves both the WAL and the
// store untouched. Once the WAL holds a transaction it is committed: a store
// failure after that point leaves the batch pending, and it is retried before
// the next transaction or applied by Recover after a restart.
//
// # Stores
//
// MemStore keeps accounts in a map and starts empty, so Recover re-executes
// the whole WAL into it. FirestoreStore keeps one document per account and
// commits a batch inside a Firestore transaction together with the hash and
// the slot; Recover only executes what the WAL holds past that slot. With a
// durable store, WALRetainSlots lets the engine checkpoint the WAL.
//
// # Usage Example
//
//	cfg := engine.DefaultConfig()
//	w, _ := wal.NewFileWAL(cfg.WALPath)
//	eng := engine.NewEngine(cfg, engine.NewMemStore(), w, engine.SystemClock{}, logger)
//
//	if _, err := eng.Recover(ctx); err != nil {
//	    return err
//	}
//	eng.Start()
//	defer eng.Stop()
//
//	receipt, err := eng.Submit(ctx, tx)
package engine
