package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// sink is one output with its own severity floor.
type sink struct {
	buf *bufio.Writer
	min slog.Level
}

type line struct {
	level slog.Level
	data  []byte
	ack   chan error // set on flush requests, data is empty then
}

// lineWriter fans formatted lines out to its sinks from a single goroutine.
type lineWriter struct {
	lines  chan line
	done   chan struct{}
	sinks  []sink
	closed sync.Once

	mu  sync.Mutex
	err error
}

func newLineWriter(sinks []sink) *lineWriter {
	w := &lineWriter{
		lines: make(chan line, 256),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go w.run()
	return w
}

// output wraps dst as a sink accepting records at floor and above.
func output(dst io.Writer, floor slog.Level) sink {
	return sink{buf: bufio.NewWriterSize(dst, 64*1024), min: floor}
}

func (w *lineWriter) run() {
	defer close(w.done)
	for l := range w.lines {
		if l.ack != nil {
			l.ack <- w.flush()
			continue
		}
		for _, s := range w.sinks {
			if l.level < s.min {
				continue
			}
			if _, err := s.buf.Write(l.data); err != nil {
				w.fail(err)
				continue
			}
			if err := s.buf.Flush(); err != nil {
				w.fail(err)
			}
		}
	}
	w.fail(w.flush())
}

// Write queues a copy of p. It blocks while the queue is full.
func (w *lineWriter) Write(level slog.Level, p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- line{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	w.lines <- line{ack: ack}
	return errors.Join(<-ack, w.firstErr())
}

// Close drains the queue and stops the writer goroutine.
func (w *lineWriter) Close() error {
	w.closed.Do(func() { close(w.lines) })
	<-w.done
	return w.firstErr()
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.buf.Flush())
	}
	return errors.Join(errs...)
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *lineWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
