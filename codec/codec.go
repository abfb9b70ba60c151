// Package codec implements the fixed binary layout shared by every pollberry
// record and instruction.
//
// Integers are fixed-width little-endian. Strings and byte slices carry a
// 4-byte little-endian length prefix followed by the raw bytes. Sequences carry
// a 4-byte count followed by their entries. There is no version tag and no
// field framing: the layout is positional.
//
// Decoding never truncates or pads silently. Any declared length that runs past
// the input, exceeds the caller's bound, or leaves unexpected trailing bytes
// fails with ErrMalformedRecord.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrRecordOverflow  = errors.New("record exceeds capacity")
)

// LengthPrefixSize is the size of a string, byte slice or sequence prefix.
const LengthPrefixSize = 4

// Encoder appends values to a growing buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given capacity hint.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *Encoder) PutU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) PutU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) PutU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// PutString writes a length-prefixed string.
func (e *Encoder) PutString(s string) {
	e.PutU32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBytes writes a length-prefixed byte slice.
func (e *Encoder) PutBytes(b []byte) {
	e.PutU32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// PutFixed writes b without a prefix. Used for keys and discriminators.
func (e *Encoder) PutFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// PutSeqLen writes the entry count of a sequence.
func (e *Encoder) PutSeqLen(n int) {
	e.PutU32(uint32(n))
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Padded returns the encoded bytes zero-padded to exactly capacity bytes.
func (e *Encoder) Padded(capacity int) ([]byte, error) {
	if len(e.buf) > capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordOverflow, len(e.buf), capacity)
	}
	out := make([]byte, capacity)
	copy(out, e.buf)
	return out, nil
}

// Decoder reads values from a byte slice. The first failure is sticky: later
// reads return zero values and Err reports the original cause.
type Decoder struct {
	data []byte
	off  int
	err  error
}

// NewDecoder creates a decoder over data. The slice is not copied.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.data)-d.off {
		d.fail("need %d bytes at offset %d, have %d", n, d.off, len(d.data)-d.off)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) boundedLen(max int, what string) int {
	n := d.U32()
	if d.err != nil {
		return 0
	}
	if uint64(n) > uint64(max) {
		d.fail("%s length %d exceeds bound %d", what, n, max)
		return 0
	}
	return int(n)
}

// String reads a length-prefixed string of at most max bytes.
func (d *Decoder) String(max int) string {
	n := d.boundedLen(max, "string")
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Bytes reads a length-prefixed byte slice of at most max bytes. The result is
// a copy.
func (d *Decoder) Bytes(max int) []byte {
	n := d.boundedLen(max, "bytes")
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Fixed reads exactly n unprefixed bytes into dst.
func (d *Decoder) Fixed(dst []byte) {
	b := d.take(len(dst))
	if b != nil {
		copy(dst, b)
	}
}

// SeqLen reads a sequence count of at most max entries.
func (d *Decoder) SeqLen(max int) int {
	return d.boundedLen(max, "sequence")
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// Err returns the first decode failure, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Finish requires that every byte was consumed.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, len(d.data)-d.off)
	}
	return nil
}

// FinishPadded requires that every unread byte is zero padding.
func (d *Decoder) FinishPadded() error {
	if d.err != nil {
		return d.err
	}
	for i := d.off; i < len(d.data); i++ {
		if d.data[i] != 0 {
			return fmt.Errorf("%w: non-zero padding at offset %d", ErrMalformedRecord, i)
		}
	}
	return nil
}
