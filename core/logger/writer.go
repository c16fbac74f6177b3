package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter fans lines out to its sinks from a single goroutine. Sinks are
// flushed whenever the queue drains, so a burst of lines costs one write per sink.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	sinks   []*bufio.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 512),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.flush())
				return
			}
			w.record(w.write(line))
			if len(w.lines) == 0 {
				w.record(w.flush())
			}
		case ack := <-w.flushes:
			ack <- w.drain()
		}
	}
}

// drain writes whatever is queued and flushes the sinks.
func (w *asyncWriter) drain() error {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return w.flush()
			}
			w.record(w.write(line))
		default:
			return w.flush()
		}
	}
}

// Write queues a copy of line. It blocks when the queue is full rather than
// dropping log lines.
func (w *asyncWriter) Write(line []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), line...)
	return nil
}

// Flush blocks until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return w.firstErr()
	}
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and returns the first write error seen.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) write(line []byte) error {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
