package telegram

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/netutil"
)

// HTTPOptions tunes the Bot API client. Zero values select defaults.
type HTTPOptions struct {
	// Timeout bounds a whole request; long polls add their own timeout on top.
	Timeout        time.Duration
	DialTimeout    time.Duration
	HeaderTimeout  time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	PollTimeoutSec int
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.HeaderTimeout <= 0 {
		o.HeaderTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// BuildHTTPClient returns the client handed to telebot. Connection level
// failures are retried; API errors are left to the caller.
func BuildHTTPClient(opts HTTPOptions) *http.Client {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   opts.DialTimeout,
		ResponseHeaderTimeout: opts.HeaderTimeout + time.Duration(opts.PollTimeoutSec)*time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout + time.Duration(opts.PollTimeoutSec)*time.Second,
		Transport: &retryTransport{base: base, retries: opts.RetryAttempts, backoff: opts.RetryBackoff, sleep: sleepCtx},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
	sleep   func(context.Context, time.Duration) error
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		f := netutil.Classify(err)
		if !f.Retry || attempt > t.retries {
			return nil, err
		}
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, err
			}
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, err
			}
			req = req.Clone(ctx)
			req.Body = body
		}
		delay := netutil.Backoff(t.backoff, attempt, f)
		logger.Debug(ctx, "tg.http", "http.retry",
			slog.String("cause", f.Kind),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
		)
		if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
