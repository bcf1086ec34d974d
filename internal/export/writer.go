// Package export owns the on-disk session layout and its append-only writers.
package export

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

const writerQueueDepth = 1024

// Writer is a single-consumer append queue in front of one file. Write
// enqueues and returns immediately; a drain goroutine creates the file on
// first use and appends in submission order. Open or write failures are
// logged and the payload dropped, never retried, never surfaced.
type Writer struct {
	path   string
	queue  chan []byte
	done   chan struct{}
	logger *zap.Logger

	drops  atomic.Uint64
	closed atomic.Bool
}

// NewWriter starts the drain goroutine for path. The file is not touched
// until the first payload arrives.
func NewWriter(path string, logger *zap.Logger) *Writer {
	w := &Writer{
		path:   path,
		queue:  make(chan []byte, writerQueueDepth),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.drain()
	return w
}

// Write enqueues one payload. The caller gives up ownership of p. Writes
// after Close, or while the queue is saturated, are dropped and counted.
func (w *Writer) Write(p []byte) {
	if w.closed.Load() {
		w.drops.Add(1)
		return
	}
	select {
	case w.queue <- p:
	default:
		w.drops.Add(1)
	}
}

// Drops reports how many payloads were discarded.
func (w *Writer) Drops() uint64 { return w.drops.Load() }

// Close stops accepting writes and lets the drain finish the backlog in the
// background; it does not wait. Use Wait when a barrier is actually needed.
func (w *Writer) Close() {
	if w.closed.CompareAndSwap(false, true) {
		close(w.queue)
	}
}

// Wait blocks until the drain goroutine has exited.
func (w *Writer) Wait() {
	<-w.done
}

func (w *Writer) drain() {
	defer close(w.done)
	var f *os.File
	var failed bool
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()
	for p := range w.queue {
		if failed {
			w.drops.Add(1)
			continue
		}
		if f == nil {
			var err error
			f, err = os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				w.logger.Warn("writer open failed, dropping all writes",
					zap.String("path", w.path), zap.Error(err))
				failed = true
				w.drops.Add(1)
				continue
			}
		}
		if _, err := f.Write(p); err != nil {
			w.logger.Warn("writer append failed, payload dropped",
				zap.String("path", w.path), zap.Error(err))
			w.drops.Add(1)
		}
	}
}
