// Package aof implements the append-only persistence writer (spec §4.D):
// a bounded-channel background writer with periodic fsync, graceful
// drain-on-shutdown, and startup replay.
package aof

import (
	"bytes"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rsms/go-log"
)

// Config controls a Writer's batching and durability cadence.
type Config struct {
	Path string

	// QueueSize bounds the in-flight record channel; a full channel makes
	// Record block, transmitting backpressure to the caller (spec §4.D
	// "Backpressure").
	QueueSize int

	// FsyncInterval is how often the writer issues an explicit fsync even
	// if the batch threshold hasn't been reached. Default 1 second per
	// spec §4.D.
	FsyncInterval time.Duration

	// BatchThreshold is the buffered byte count at which the writer
	// flushes to the OS immediately rather than waiting for the timer.
	BatchThreshold int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.FsyncInterval <= 0 {
		c.FsyncInterval = time.Second
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 64 * 1024
	}
	return c
}

// maxWriteRetries and writeRetryBaseDelay bound the retry-with-backoff
// policy for a failing write or fsync (spec §7 AofWriteFailed: "retried
// with backoff; if persistent, the server initiates shutdown to preserve
// the durability contract").
const (
	maxWriteRetries     = 5
	writeRetryBaseDelay = 10 * time.Millisecond
)

// Writer owns the AOF file and its background drain loop. The zero value
// is not usable; construct with Open.
type Writer struct {
	cfg    Config
	file   *os.File
	logger *log.Logger

	records chan []byte
	stopc   chan struct{}
	stopped chan struct{}
	fatalc  chan error

	closeOnce sync.Once

	offset      int64 // atomic: bytes written to the file so far
	recordCount int64 // atomic: records appended so far
}

// Open opens (creating if absent) the AOF file at cfg.Path for appending
// and starts the background writer goroutine. The server must call this
// only after Replay has finished reading any pre-existing log (spec §4.D
// "Replay... before opening the listener").
func Open(cfg Config, logger *log.Logger) (*Writer, error) {
	cfg = cfg.withDefaults()
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	w := &Writer{
		cfg:     cfg,
		file:    f,
		logger:  logger,
		records: make(chan []byte, cfg.QueueSize),
		stopc:   make(chan struct{}),
		stopped: make(chan struct{}),
		fatalc:  make(chan error, 1),
		offset:  info.Size(),
	}
	go w.run()
	return w, nil
}

// Fatal reports an unrecoverable write/fsync failure: every retry in the
// backoff policy was exhausted and the log can no longer be trusted. The
// writer stops persisting once this fires; the caller (the server) is
// expected to shut down rather than keep accepting mutations it cannot
// durably record. The channel receives at most one error and is never
// closed.
func (w *Writer) Fatal() <-chan error {
	return w.fatalc
}

// Record enqueues the raw wire bytes of one executed mutation. It copies
// raw before returning, since the caller's buffer (the connection's input
// buffer) may be overwritten by the next read (spec §9 "Zero-copy vs.
// owned storage"). Record blocks if the queue is full; it returns
// immediately with no effect if the writer has already been closed.
func (w *Writer) Record(raw []byte) {
	rec := append([]byte(nil), raw...)
	select {
	case w.records <- rec:
	case <-w.stopc:
	}
}

// Close signals the writer to drain its queue, perform a final write and
// fsync, and exit. It blocks until the drain has completed.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() { close(w.stopc) })
	<-w.stopped
	return nil
}

func (w *Writer) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.FsyncInterval)
	defer ticker.Stop()

	var buf bytes.Buffer
	for {
		select {
		case rec := <-w.records:
			buf.Write(rec)
			atomic.AddInt64(&w.recordCount, 1)
			if buf.Len() >= w.cfg.BatchThreshold {
				if !w.flush(&buf) {
					return
				}
			}
		drain:
			for buf.Len() < w.cfg.BatchThreshold {
				select {
				case rec2 := <-w.records:
					buf.Write(rec2)
					atomic.AddInt64(&w.recordCount, 1)
				default:
					break drain
				}
			}

		case <-ticker.C:
			if !w.sync(&buf) {
				return
			}

		case <-w.stopc:
			for {
				select {
				case rec := <-w.records:
					buf.Write(rec)
					atomic.AddInt64(&w.recordCount, 1)
				default:
					if w.sync(&buf) {
						w.file.Close()
					}
					return
				}
			}
		}
	}
}

// flush writes buf to the file, retrying with exponential backoff on
// failure. A write that still fails after maxWriteRetries is reported on
// Fatal and flush returns false, telling run to stop the writer rather than
// keep silently discarding batches it cannot persist.
func (w *Writer) flush(buf *bytes.Buffer) bool {
	if buf.Len() == 0 {
		return true
	}
	data := buf.Bytes()
	delay := writeRetryBaseDelay
	var err error
	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		var n int
		n, err = w.file.Write(data)
		if err == nil {
			atomic.AddInt64(&w.offset, int64(n))
			buf.Reset()
			return true
		}
		w.warn("aof write failed (attempt %d/%d): %v", attempt+1, maxWriteRetries+1, err)
		if attempt < maxWriteRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	w.failPersistently(err)
	return false
}

// sync flushes then fsyncs, applying the same retry-then-fatal policy to
// both steps.
func (w *Writer) sync(buf *bytes.Buffer) bool {
	if !w.flush(buf) {
		return false
	}
	delay := writeRetryBaseDelay
	var err error
	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		if err = w.file.Sync(); err == nil {
			w.writeMetaSnapshot()
			return true
		}
		w.warn("aof fsync failed (attempt %d/%d): %v", attempt+1, maxWriteRetries+1, err)
		if attempt < maxWriteRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	w.failPersistently(err)
	return false
}

// failPersistently reports an unrecoverable error on Fatal (best-effort;
// the channel is buffered by one and only the first failure matters) and
// closes the file, since a writer that can no longer append or sync has
// nothing further to do with it.
func (w *Writer) failPersistently(err error) {
	w.warn("aof write failed persistently after %d attempts, giving up: %v", maxWriteRetries+1, err)
	select {
	case w.fatalc <- err:
	default:
	}
	w.file.Close()
}

func (w *Writer) writeMetaSnapshot() {
	m := meta{
		Offset:   atomic.LoadInt64(&w.offset),
		Records:  atomic.LoadInt64(&w.recordCount),
		SyncedAt: time.Now().Unix(),
	}
	if err := writeMeta(w.cfg.Path, m); err != nil {
		w.warn("aof metadata sidecar write failed: %v", err)
	}
}

func (w *Writer) warn(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Warn(format, args...)
	}
}
