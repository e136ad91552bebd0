package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryTransportRetriesDialFailures(t *testing.T) {
	var bodies []string
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 3 {
			return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	var delays []time.Duration
	rt := &retryTransport{base: base, retries: 3, backoff: time.Second, sleep: func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}}

	req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`, `{"text":"hi"}`}, bodies)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("malformed response")
	rt := &retryTransport{base: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, boom
	}), retries: 3, backoff: time.Millisecond, sleep: sleepCtx}

	req, err := http.NewRequest(http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestBuildHTTPClientStretchesForLongPoll(t *testing.T) {
	c := BuildHTTPClient(HTTPOptions{PollTimeoutSec: 25})
	require.Equal(t, 55*time.Second, c.Timeout)
	_, ok := c.Transport.(*retryTransport)
	require.True(t, ok)
}
