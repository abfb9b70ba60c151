// Package wal implements the write-ahead log the engine replays after a
// restart.
//
// Every committed transaction is written as a Tx message followed by an
// EndSlot marker. The log is written before the account store, so a Tx
// without its marker was cut off by a crash and is still replayed.
//
// # Message Types
//
//	MsgTypeTx      signed transaction, executed at Time
//	MsgTypeEndSlot marks the slot as committed
//
// # Framing
//
// Each message is stored as
//
//	length (u32 big-endian) | body | crc32 (u32 big-endian)
//
// Segments are rotated once they reach MaxSegmentSize and named wal-00000,
// wal-00001, and so on. A torn frame at the end of the last segment is
// truncated when the log is started. A bad checksum anywhere else is
// reported as ErrWALCorrupted. Checkpoint deletes closed segments whose
// every message is at or below a slot the store has durably committed.
//
// # Usage
//
//	w, err := wal.NewFileWAL(dir)
//	if err := w.Start(); err != nil { ... }
//	defer w.Stop()
//
//	msg, _ := wal.NewTxMessage(slot, now, tx)
//	w.Write(msg)
//	w.WriteSync(wal.NewEndSlotMessage(slot, now))
//
//	r, found, err := w.SearchForEndSlot(slot)
//	if !found {
//	    r, err = w.OpenReader()
//	}
//	for {
//	    msg, err := r.Read()
//	    if err == io.EOF { break }
//	    ...
//	}
package wal
