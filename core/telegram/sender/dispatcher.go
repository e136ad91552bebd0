// Package sender runs outbound Telegram calls on a worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when no slot is free; the caller may send inline instead.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job including its retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Stats is a point-in-time view of the dispatcher counters.
type Stats struct {
	Queued  int
	Sent    uint64
	Retried uint64
	Failed  uint64
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher sends helper messages asynchronously. Flow prompts bypass it
// because the flow needs their message ids before it continues.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent, retried, failed atomic.Uint64
	sleep                 func(ctx context.Context, d time.Duration) error
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:  opts,
		jobs:  make(chan job, opts.QueueSize),
		sleep: sleepCtx,
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.do(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run. It never blocks; run may execute more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:  len(d.jobs),
		Sent:    d.sent.Load(),
		Retried: d.retried.Load(),
		Failed:  d.failed.Load(),
	}
}

// Close rejects new jobs and waits until queued ones are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) do(j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := []slog.Attr{slog.String("op", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}

	attempt := 1
	for {
		err := j.run()
		if err == nil {
			d.sent.Add(1)
			logger.Debug(ctx, "tg.sender", "send.ok", append(attrs,
				slog.Int("attempts", attempt),
				slog.Duration("duration", time.Since(start)),
			)...)
			return
		}

		f := netutil.Classify(err)
		if !f.Retry || attempt > d.opts.MaxRetries {
			d.fail(ctx, attrs, err, f, attempt, start)
			return
		}
		delay := netutil.Backoff(d.opts.RetryBackoff, attempt, f)
		logger.Debug(ctx, "tg.sender", "send.retry", append(attrs,
			slog.Int("attempts", attempt),
			slog.String("cause", f.Kind),
			slog.Duration("backoff", delay),
		)...)
		if err := d.sleep(ctx, delay); err != nil {
			d.fail(ctx, attrs, err, netutil.Classify(err), attempt, start)
			return
		}
		d.retried.Add(1)
		attempt++
	}
}

func (d *Dispatcher) fail(ctx context.Context, attrs []slog.Attr, err error, f netutil.Failure, attempts int, start time.Time) {
	d.failed.Add(1)
	attrs = append(attrs,
		slog.String("err", netutil.Redact(err.Error())),
		slog.String("err_code", f.Kind),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	)
	if f.Code != 0 {
		attrs = append(attrs, slog.Int("http_code", f.Code))
	}
	logger.Error(ctx, "tg.sender", "send.fail", attrs...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
