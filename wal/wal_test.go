package wal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/blockberries/pollberry/types"
)

func startWAL(t *testing.T, dir string, opts Options) *FileWAL {
	t.Helper()
	w, err := NewFileWALWithOptions(dir, opts)
	if err != nil {
		t.Fatalf("failed to create WAL: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start WAL: %v", err)
	}
	return w
}

func readAll(t *testing.T, r Reader) []*Message {
	t.Helper()
	var msgs []*Message
	for {
		msg, err := r.Read()
		if err == io.EOF {
			return msgs
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		msgs = append(msgs, msg)
	}
}

func TestMessageEncoding(t *testing.T) {
	msg := &Message{Type: MsgTypeTx, Slot: 7, Time: 1700000000, Data: []byte("payload")}
	data, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != 1+8+8+4+7 {
		t.Errorf("unexpected body length %d", len(data))
	}

	var got Message
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != msg.Type || got.Slot != msg.Slot || got.Time != msg.Time || !bytes.Equal(got.Data, msg.Data) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := got.UnmarshalBinary(data[:10]); !errors.Is(err, ErrWALCorrupted) {
		t.Errorf("expected ErrWALCorrupted for truncated body, got %v", err)
	}
}

func TestFileWALBasic(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})

	if err := w.Write(&Message{Type: MsgTypeTx, Slot: 1, Data: []byte("a")}); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}
	if err := w.WriteSync(NewEndSlotMessage(1, 10)); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop WAL: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "wal-00000")); os.IsNotExist(err) {
		t.Error("WAL segment file should exist")
	}

	if err := w.Write(&Message{Type: MsgTypeTx}); !errors.Is(err, ErrWALClosed) {
		t.Errorf("expected ErrWALClosed after stop, got %v", err)
	}
}

func TestFileWALReopen(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})
	for slot := uint64(1); slot <= 3; slot++ {
		if err := w.Write(&Message{Type: MsgTypeTx, Slot: slot, Data: []byte{byte(slot)}}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.WriteSync(NewEndSlotMessage(slot, slot*10)); err != nil {
			t.Fatalf("write end slot: %v", err)
		}
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	w2 := startWAL(t, dir, Options{})
	defer w2.Stop()

	last, ok := w2.LastEndSlot()
	if !ok || last != 3 {
		t.Fatalf("expected last slot 3, got %d (%v)", last, ok)
	}
	if err := w2.WriteSync(&Message{Type: MsgTypeTx, Slot: 4}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	r, err := OpenWALForReading(dir)
	if err != nil {
		t.Fatalf("open for reading: %v", err)
	}
	defer r.Close()
	if msgs := readAll(t, r); len(msgs) != 7 {
		t.Errorf("expected 7 messages, got %d", len(msgs))
	}
}

func TestSearchForEndSlot(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})
	defer w.Stop()

	for slot := uint64(1); slot <= 3; slot++ {
		if err := w.Write(&Message{Type: MsgTypeTx, Slot: slot}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Write(NewEndSlotMessage(slot, 0)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r, found, err := w.SearchForEndSlot(1)
	if err != nil || !found {
		t.Fatalf("expected to find slot 1: found=%v err=%v", found, err)
	}
	msgs := readAll(t, r)
	r.Close()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after slot 1, got %d", len(msgs))
	}
	if msgs[0].Type != MsgTypeTx || msgs[0].Slot != 2 {
		t.Errorf("first message after slot 1 should be a tx in slot 2, got %+v", msgs[0])
	}

	if _, found, err := w.SearchForEndSlot(9); err != nil || found {
		t.Errorf("slot 9 should not be found: found=%v err=%v", found, err)
	}
}

func TestSearchAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{MaxSegmentSize: 64})
	defer w.Stop()

	for slot := uint64(1); slot <= 10; slot++ {
		if err := w.Write(&Message{Type: MsgTypeTx, Slot: slot, Data: make([]byte, 20)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Write(NewEndSlotMessage(slot, 0)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if w.SegmentCount() < 2 {
		t.Fatalf("expected rotation, got %d segments", w.SegmentCount())
	}

	r, found, err := w.SearchForEndSlot(2)
	if err != nil || !found {
		t.Fatalf("expected to find slot 2: found=%v err=%v", found, err)
	}
	defer r.Close()

	var ends int
	for _, msg := range readAll(t, r) {
		if msg.Type == MsgTypeEndSlot {
			ends++
		}
	}
	if ends != 8 {
		t.Errorf("expected 8 later EndSlot markers, got %d", ends)
	}
}

func TestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{MaxSegmentSize: 64})
	defer w.Stop()

	for slot := uint64(1); slot <= 10; slot++ {
		if err := w.Write(&Message{Type: MsgTypeTx, Slot: slot, Data: make([]byte, 20)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Write(NewEndSlotMessage(slot, 0)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	before := w.SegmentCount()

	if err := w.Checkpoint(5); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if w.SegmentCount() >= before {
		t.Errorf("checkpoint removed nothing (%d segments)", before)
	}
	if _, found, _ := w.SearchForEndSlot(10); !found {
		t.Error("slot 10 should survive the checkpoint")
	}
	if _, found, _ := w.SearchForEndSlot(1); found {
		t.Error("slot 1 should be gone after the checkpoint")
	}
}

func TestCheckpointAfterRestart(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{MaxSegmentSize: 64})
	for slot := uint64(1); slot <= 6; slot++ {
		if err := w.Write(&Message{Type: MsgTypeTx, Slot: slot, Data: make([]byte, 20)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Write(NewEndSlotMessage(slot, 0)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// slot bounds come from the index built at Start
	w2 := startWAL(t, dir, Options{MaxSegmentSize: 64})
	defer w2.Stop()
	before := w2.SegmentCount()
	if err := w2.Checkpoint(0); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if w2.SegmentCount() != before {
		t.Errorf("checkpoint at slot 0 removed segments: %d -> %d", before, w2.SegmentCount())
	}
	if err := w2.Checkpoint(6); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if w2.SegmentCount() != 1 {
		t.Errorf("only the active segment should remain, got %d", w2.SegmentCount())
	}
	if last, ok := w2.LastEndSlot(); !ok || last != 6 {
		t.Errorf("last slot lost: %d (%v)", last, ok)
	}
}

func TestOpenReaderSeesBufferedWrites(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})
	defer w.Stop()

	if err := w.Write(&Message{Type: MsgTypeTx, Slot: 1, Data: []byte("a")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(NewEndSlotMessage(1, 0)); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := w.OpenReader()
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	if msgs := readAll(t, r); len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %d", len(msgs))
	}

	w.Stop()
	if _, err := w.OpenReader(); !errors.Is(err, ErrWALClosed) {
		t.Errorf("expected ErrWALClosed, got %v", err)
	}
}

func TestTornTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})
	if err := w.WriteSync(NewEndSlotMessage(1, 0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	path := filepath.Join(dir, "wal-00000")
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	// half a frame header
	if err := os.WriteFile(path, append(good, 0, 0), 0600); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	w2 := startWAL(t, dir, Options{})
	if err := w2.WriteSync(NewEndSlotMessage(2, 0)); err != nil {
		t.Fatalf("write after recovery: %v", err)
	}
	if err := w2.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	r, err := OpenWALForReading(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	msgs := readAll(t, r)
	if len(msgs) != 2 || msgs[1].Slot != 2 {
		t.Errorf("expected both end-slot markers after recovery, got %d messages", len(msgs))
	}
}

func TestCorruptedFrame(t *testing.T) {
	dir := t.TempDir()
	w := startWAL(t, dir, Options{})
	if err := w.WriteSync(&Message{Type: MsgTypeTx, Slot: 1, Data: []byte("hello")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	path := filepath.Join(dir, "wal-00000")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-6] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := OpenWALForReading(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if _, err := r.Read(); !errors.Is(err, ErrWALCorrupted) {
		t.Errorf("expected ErrWALCorrupted, got %v", err)
	}
}

func TestOpenWALForReadingEmpty(t *testing.T) {
	if _, err := OpenWALForReading(t.TempDir()); !errors.Is(err, ErrWALNotFound) {
		t.Errorf("expected ErrWALNotFound, got %v", err)
	}
}

func TestTxMessage(t *testing.T) {
	tx := &types.Transaction{
		Program: types.ProgramID("polls"),
		Nonce:   3,
		Data:    []byte{2, 0, 0, 0, 0},
	}
	tx.Signer[0] = 1

	msg, err := NewTxMessage(4, 99, tx)
	if err != nil {
		t.Fatalf("new tx message: %v", err)
	}
	if msg.Type != MsgTypeTx || msg.Slot != 4 || msg.Time != 99 {
		t.Errorf("unexpected message header %+v", msg)
	}
	decoded, err := DecodeTx(msg.Data)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if decoded.Hash() != tx.Hash() {
		t.Error("decoded transaction differs")
	}
}

func TestNopWAL(t *testing.T) {
	var w WAL = &NopWAL{}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSync(NewEndSlotMessage(1, 0)); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := w.SearchForEndSlot(1); found {
		t.Error("NopWAL should never find a slot")
	}
	if err := w.Checkpoint(1); err != nil {
		t.Fatal(err)
	}
	r, err := w.OpenReader()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF from NopWAL reader, got %v", err)
	}
	if _, err := (&NopReader{}).Read(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
