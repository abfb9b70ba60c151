package wal

import (
	"errors"
	"fmt"
	"io"

	"github.com/blockberries/pollberry/codec"
	"github.com/blockberries/pollberry/types"
)

// Errors
var (
	ErrWALClosed    = errors.New("WAL is closed")
	ErrWALCorrupted = errors.New("WAL is corrupted")
	ErrWALNotFound  = errors.New("WAL file not found")
)

// MessageType identifies the type of WAL message
type MessageType uint8

const (
	MsgTypeUnknown MessageType = 0
	// MsgTypeTx records a transaction before it is executed.
	MsgTypeTx MessageType = 1
	// MsgTypeEndSlot marks that every transaction of a slot is committed.
	MsgTypeEndSlot MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MsgTypeTx:
		return "tx"
	case MsgTypeEndSlot:
		return "end_slot"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is one WAL entry. Time is the ledger clock the entry was executed
// at, so replay sees the same clock.
type Message struct {
	Type MessageType
	Slot uint64
	Time uint64
	Data []byte
}

// MarshalBinary encodes the message body: type, slot, time, data
func (m *Message) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder(1 + 8 + 8 + codec.LengthPrefixSize + len(m.Data))
	enc.PutU8(uint8(m.Type))
	enc.PutU64(m.Slot)
	enc.PutU64(m.Time)
	enc.PutBytes(m.Data)
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes a message body
func (m *Message) UnmarshalBinary(data []byte) error {
	dec := codec.NewDecoder(data)
	m.Type = MessageType(dec.U8())
	m.Slot = dec.U64()
	m.Time = dec.U64()
	m.Data = dec.Bytes(maxMsgSize)
	if err := dec.Finish(); err != nil {
		return fmt.Errorf("%w: %v", ErrWALCorrupted, err)
	}
	return nil
}

// WAL interface for write-ahead logging
type WAL interface {
	// Write writes a message to the WAL
	Write(msg *Message) error

	// WriteSync writes a message and ensures it's synced to disk
	WriteSync(msg *Message) error

	// FlushAndSync flushes and syncs all pending writes
	FlushAndSync() error

	// SearchForEndSlot returns a Reader positioned after the EndSlot message
	// for slot, or false if the slot never ended.
	SearchForEndSlot(slot uint64) (Reader, bool, error)

	// OpenReader returns a Reader over every retained message, oldest first
	OpenReader() (Reader, error)

	// Checkpoint discards messages at or below slot that are no longer
	// needed for recovery
	Checkpoint(slot uint64) error

	// Start starts the WAL
	Start() error

	// Stop stops the WAL
	Stop() error
}

// Reader interface for reading from WAL
type Reader interface {
	// Read reads the next message, returning io.EOF at the end of the log
	Read() (*Message, error)

	// Close closes the reader
	Close() error
}

// NewTxMessage creates a WAL message for a transaction
func NewTxMessage(slot, time uint64, tx *types.Transaction) (*Message, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Message{
		Type: MsgTypeTx,
		Slot: slot,
		Time: time,
		Data: data,
	}, nil
}

// NewEndSlotMessage creates a WAL message marking the end of a slot
func NewEndSlotMessage(slot, time uint64) *Message {
	return &Message{
		Type: MsgTypeEndSlot,
		Slot: slot,
		Time: time,
	}
}

// DecodeTx decodes a transaction from WAL message data
func DecodeTx(data []byte) (*types.Transaction, error) {
	tx := &types.Transaction{}
	if err := tx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return tx, nil
}

// NopWAL is a no-op WAL implementation for testing
type NopWAL struct{}

func (w *NopWAL) Write(msg *Message) error                           { return nil }
func (w *NopWAL) WriteSync(msg *Message) error                       { return nil }
func (w *NopWAL) FlushAndSync() error                                { return nil }
func (w *NopWAL) SearchForEndSlot(slot uint64) (Reader, bool, error) { return nil, false, nil }
func (w *NopWAL) OpenReader() (Reader, error)                        { return &NopReader{}, nil }
func (w *NopWAL) Checkpoint(slot uint64) error                       { return nil }
func (w *NopWAL) Start() error                                       { return nil }
func (w *NopWAL) Stop() error                                        { return nil }

// Ensure NopWAL implements WAL
var _ WAL = (*NopWAL)(nil)

// NopReader is a no-op reader
type NopReader struct{}

func (r *NopReader) Read() (*Message, error) { return nil, io.EOF }
func (r *NopReader) Close() error            { return nil }

var _ Reader = (*NopReader)(nil)
