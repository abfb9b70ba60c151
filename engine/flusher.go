package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/wal"
)

// walFlusher periodically flushes and syncs a WAL that is written without
// per-commit sync.
type walFlusher struct {
	mu       sync.Mutex
	wal      wal.WAL
	interval time.Duration
	log      *logrus.Entry

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	// Metrics
	flushes  uint64
	failures uint64
}

func newWALFlusher(w wal.WAL, interval time.Duration, log *logrus.Entry) *walFlusher {
	return &walFlusher{
		wal:      w,
		interval: interval,
		log:      log,
	}
}

// Start starts the flush loop
func (f *walFlusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running || f.interval <= 0 {
		return
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})

	go f.run(f.stopCh, f.doneCh)
}

// Stop stops the flush loop and waits for an in-flight flush to finish
func (f *walFlusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	done := f.doneCh
	f.mu.Unlock()

	<-done
}

func (f *walFlusher) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := f.wal.FlushAndSync(); err != nil {
				count := atomic.AddUint64(&f.failures, 1)
				f.log.WithError(err).WithField("failures", count).Warn("periodic WAL flush failed")
				continue
			}
			atomic.AddUint64(&f.flushes, 1)
		}
	}
}

// Flushes returns the number of successful periodic flushes
func (f *walFlusher) Flushes() uint64 {
	return atomic.LoadUint64(&f.flushes)
}

// Failures returns the number of failed periodic flushes
func (f *walFlusher) Failures() uint64 {
	return atomic.LoadUint64(&f.failures)
}
