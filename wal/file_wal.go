package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	walFilePerm       = 0600
	walDirPerm        = 0700
	maxMsgSize        = 1024 * 1024      // 1MB max message body
	defaultBufSize    = 64 * 1024        // 64KB buffer
	defaultMaxSegSize = 64 * 1024 * 1024 // 64MB default segment size

	frameOverhead = 8 // length prefix + CRC32
)

// Options tunes a FileWAL
type Options struct {
	// MaxSegmentSize is the size at which the active segment is rotated.
	MaxSegmentSize int64
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger
}

// FileWAL is a file-based WAL made of numbered segments (wal-00000,
// wal-00001, ...). Only the highest segment is written to.
type FileWAL struct {
	mu   sync.Mutex
	dir  string
	file *os.File
	buf  *bufio.Writer
	enc  *encoder
	log  *logrus.Entry

	started     bool
	minIndex    int
	maxIndex    int
	segmentSize int64
	maxSegSize  int64

	// slot -> segment holding its EndSlot message
	slotIndex map[uint64]int
	lastSlot  uint64
	hasSlot   bool

	// segment -> highest slot written to it
	segMaxSlot map[int]uint64
}

// NewFileWAL creates a new file-based WAL
func NewFileWAL(dir string) (*FileWAL, error) {
	return NewFileWALWithOptions(dir, Options{})
}

// NewFileWALWithOptions creates a new file-based WAL with custom options
func NewFileWALWithOptions(dir string, opts Options) (*FileWAL, error) {
	if err := os.MkdirAll(dir, walDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	maxSegSize := opts.MaxSegmentSize
	if maxSegSize <= 0 {
		maxSegSize = defaultMaxSegSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &FileWAL{
		dir:        dir,
		maxSegSize: maxSegSize,
		log:        logger.WithFields(logrus.Fields{"module": "wal", "dir": dir}),
	}, nil
}

// Start opens the highest segment for appending, indexing every EndSlot
// message found on disk first. A torn entry at the tail of the last segment
// is truncated away.
func (w *FileWAL) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	w.slotIndex = make(map[uint64]int)
	w.segMaxSlot = make(map[int]uint64)
	w.hasSlot = false
	w.lastSlot = 0

	segments, err := findSegments(w.dir)
	if err != nil {
		return fmt.Errorf("failed to find WAL segments: %w", err)
	}
	if len(segments) > 0 {
		w.minIndex = segments[0]
		w.maxIndex = segments[len(segments)-1]
	} else {
		w.minIndex, w.maxIndex = 0, 0
	}

	if err := w.buildIndex(segments); err != nil {
		return fmt.Errorf("failed to build WAL index: %w", err)
	}

	if err := w.openSegment(w.maxIndex); err != nil {
		return err
	}

	w.started = true
	w.log.WithFields(logrus.Fields{
		"segments":  len(segments),
		"last_slot": w.lastSlot,
	}).Debug("WAL started")
	return nil
}

func (w *FileWAL) buildIndex(segments []int) error {
	for i, idx := range segments {
		last := i == len(segments)-1
		if err := w.indexSegment(idx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *FileWAL) indexSegment(idx int, last bool) error {
	path := w.segmentPath(idx)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	dec := newDecoder(bufio.NewReader(file))
	for {
		msg, err := dec.Decode()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if !last {
				// entries after a corrupt frame in an older segment are unreachable
				w.log.WithError(err).WithField("segment", idx).Warn("corrupt WAL segment")
				return nil
			}
			w.log.WithError(err).WithFields(logrus.Fields{
				"segment": idx,
				"offset":  dec.offset,
			}).Warn("truncating torn WAL tail")
			return os.Truncate(path, dec.offset)
		}

		w.recordSlot(msg, idx)
	}
}

func (w *FileWAL) recordSlot(msg *Message, segment int) {
	if msg.Slot > w.segMaxSlot[segment] {
		w.segMaxSlot[segment] = msg.Slot
	}
	if msg.Type != MsgTypeEndSlot {
		return
	}
	w.slotIndex[msg.Slot] = segment
	if !w.hasSlot || msg.Slot > w.lastSlot {
		w.lastSlot = msg.Slot
		w.hasSlot = true
	}
}

func (w *FileWAL) segmentPath(index int) string {
	return filepath.Join(w.dir, segmentName(index))
}

func segmentName(index int) string {
	return fmt.Sprintf("wal-%05d", index)
}

func (w *FileWAL) openSegment(index int) error {
	path := w.segmentPath(index)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, walFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open WAL segment %d: %w", index, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat WAL segment: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriterSize(file, defaultBufSize)
	w.enc = newEncoder(w.buf)
	w.segmentSize = info.Size()
	return nil
}

// Stop flushes, syncs and closes the active segment
func (w *FileWAL) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false

	if err := w.flushAndSync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Write writes a message to the WAL (buffered)
func (w *FileWAL) Write(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(msg)
}

// WriteSync writes a message and syncs to disk
func (w *FileWAL) WriteSync(msg *Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.write(msg); err != nil {
		return err
	}
	return w.flushAndSync()
}

func (w *FileWAL) write(msg *Message) error {
	if !w.started {
		return ErrWALClosed
	}

	if w.segmentSize >= w.maxSegSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate WAL: %w", err)
		}
	}

	n, err := w.enc.Encode(msg)
	if err != nil {
		return err
	}
	w.segmentSize += int64(n)

	w.recordSlot(msg, w.maxIndex)
	return nil
}

func (w *FileWAL) rotate() error {
	if err := w.flushAndSync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}

	w.maxIndex++
	w.log.WithField("segment", w.maxIndex).Debug("rotating WAL segment")
	return w.openSegment(w.maxIndex)
}

// FlushAndSync flushes the buffer and syncs to disk
func (w *FileWAL) FlushAndSync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrWALClosed
	}
	return w.flushAndSync()
}

func (w *FileWAL) flushAndSync() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// LastEndSlot returns the highest slot with an EndSlot message
func (w *FileWAL) LastEndSlot() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSlot, w.hasSlot
}

// SearchForEndSlot returns a reader positioned just after the EndSlot message
// for slot. The reader continues through every later segment.
func (w *FileWAL) SearchForEndSlot(slot uint64) (Reader, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil, false, ErrWALClosed
	}
	if err := w.buf.Flush(); err != nil {
		return nil, false, err
	}

	if idx, ok := w.slotIndex[slot]; ok {
		reader, found, err := w.searchFrom(idx, slot)
		if err != nil || found {
			return reader, found, err
		}
		// stale index, fall through to a full scan
	}

	for idx := w.minIndex; idx <= w.maxIndex; idx++ {
		reader, found, err := w.searchFrom(idx, slot)
		if err != nil {
			return nil, false, err
		}
		if found {
			w.slotIndex[slot] = idx
			return reader, true, nil
		}
	}
	return nil, false, nil
}

// searchFrom scans one segment for the EndSlot message of slot
func (w *FileWAL) searchFrom(idx int, slot uint64) (Reader, bool, error) {
	var rest []int
	for i := idx + 1; i <= w.maxIndex; i++ {
		rest = append(rest, i)
	}
	reader := &segmentReader{dir: w.dir, segments: append([]int{idx}, rest...)}

	for {
		msg, err := reader.readSegment()
		if err == io.EOF {
			reader.Close()
			return nil, false, nil
		}
		if err != nil {
			reader.Close()
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		if msg.Type == MsgTypeEndSlot && msg.Slot == slot {
			return reader, true, nil
		}
	}
}

// OpenReader flushes pending writes and returns a reader over every segment
// still on disk
func (w *FileWAL) OpenReader() (Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil, ErrWALClosed
	}
	if err := w.buf.Flush(); err != nil {
		return nil, err
	}
	return OpenWALForReading(w.dir)
}

// Checkpoint deletes closed segments whose every message belongs to a slot
// at or below slot. Call it once the account store has durably committed
// that slot.
func (w *FileWAL) Checkpoint(slot uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrWALClosed
	}

	var remove []int
	for idx := w.minIndex; idx < w.maxIndex; idx++ { // never the active segment
		ok, err := w.segmentBelow(idx, slot)
		if err != nil || !ok {
			break
		}
		remove = append(remove, idx)
	}

	for _, idx := range remove {
		if err := os.Remove(w.segmentPath(idx)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete segment %d: %w", idx, err)
		}
		for s, segIdx := range w.slotIndex {
			if segIdx == idx {
				delete(w.slotIndex, s)
			}
		}
		delete(w.segMaxSlot, idx)
	}
	if len(remove) > 0 {
		w.minIndex = remove[len(remove)-1] + 1
		w.log.WithFields(logrus.Fields{
			"slot":    slot,
			"removed": len(remove),
		}).Info("WAL checkpoint")
	}
	return nil
}

func (w *FileWAL) segmentBelow(idx int, slot uint64) (bool, error) {
	if high, ok := w.segMaxSlot[idx]; ok {
		return high <= slot, nil
	}

	// no messages indexed, read the file
	file, err := os.Open(w.segmentPath(idx))
	if err != nil {
		return false, err
	}
	defer file.Close()

	dec := newDecoder(bufio.NewReader(file))
	for {
		msg, err := dec.Decode()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if msg.Slot > slot {
			return false, nil
		}
	}
}

// SegmentCount returns the number of segments on disk
func (w *FileWAL) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxIndex - w.minIndex + 1
}

// CurrentSegmentSize returns the approximate size of the active segment
func (w *FileWAL) CurrentSegmentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segmentSize
}

var _ WAL = (*FileWAL)(nil)

// encoder frames messages as [u32be length][body][u32be CRC32(body)]
type encoder struct {
	w   io.Writer
	hdr [4]byte
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: w}
}

// Encode writes a message and returns the number of bytes written
func (e *encoder) Encode(msg *Message) (int, error) {
	data, err := msg.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if len(data) > maxMsgSize {
		return 0, fmt.Errorf("WAL message too large: %d bytes", len(data))
	}

	binary.BigEndian.PutUint32(e.hdr[:], uint32(len(data)))
	if _, err := e.w.Write(e.hdr[:]); err != nil {
		return 0, err
	}
	if _, err := e.w.Write(data); err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint32(e.hdr[:], crc32.ChecksumIEEE(data))
	if _, err := e.w.Write(e.hdr[:]); err != nil {
		return 0, err
	}
	return len(data) + frameOverhead, nil
}

type decoder struct {
	r      io.Reader
	hdr    [4]byte
	offset int64 // end of the last good frame
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: r}
}

// Decode reads the next frame. A clean end of input returns io.EOF; a frame
// cut short returns io.ErrUnexpectedEOF.
func (d *decoder) Decode() (*Message, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(d.hdr[:])
	if length > maxMsgSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrWALCorrupted, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(d.r, data); err != nil {
		return nil, unexpected(err)
	}
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return nil, unexpected(err)
	}
	want := binary.BigEndian.Uint32(d.hdr[:])
	if got := crc32.ChecksumIEEE(data); got != want {
		return nil, fmt.Errorf("%w: CRC mismatch (expected %08x, got %08x)", ErrWALCorrupted, want, got)
	}

	msg := &Message{}
	if err := msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	d.offset += int64(length) + frameOverhead
	return msg, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// segmentReader reads a list of segments in order
type segmentReader struct {
	dir      string
	segments []int
	file     *os.File
	dec      *decoder
}

// readSegment reads from the current segment only, opening the first one if
// needed. It returns io.EOF at the end of that segment.
func (r *segmentReader) readSegment() (*Message, error) {
	if r.file == nil {
		if len(r.segments) == 0 {
			return nil, io.EOF
		}
		file, err := os.Open(filepath.Join(r.dir, segmentName(r.segments[0])))
		if err != nil {
			return nil, err
		}
		r.segments = r.segments[1:]
		r.file = file
		r.dec = newDecoder(bufio.NewReader(file))
	}
	return r.dec.Decode()
}

func (r *segmentReader) Read() (*Message, error) {
	for {
		msg, err := r.readSegment()
		if err == io.EOF {
			if r.file == nil {
				return nil, io.EOF
			}
			r.file.Close()
			r.file = nil
			continue
		}
		return msg, err
	}
}

func (r *segmentReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

var _ Reader = (*segmentReader)(nil)

// OpenWALForReading opens every segment in dir for reading from the start
func OpenWALForReading(dir string) (Reader, error) {
	segments, err := findSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrWALNotFound
	}
	return &segmentReader{dir: dir, segments: segments}, nil
}

func findSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []int
	for _, entry := range entries {
		var idx int
		if n, _ := fmt.Sscanf(entry.Name(), "wal-%05d", &idx); n == 1 {
			segments = append(segments, idx)
		}
	}
	sort.Ints(segments)
	return segments, nil
}
