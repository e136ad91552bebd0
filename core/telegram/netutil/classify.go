// Package netutil sorts Telegram API failures into retry decisions.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Failure kinds reported by Classify.
const (
	KindTimeout = "timeout"
	KindDNS     = "dns"
	KindDial    = "dial"
	KindTLS     = "tls"
	KindFlood   = "flood"
	KindHTTP4xx = "http_4xx"
	KindHTTP5xx = "http_5xx"
	KindUnknown = "unknown"
)

// Failure describes a failed Telegram call.
type Failure struct {
	Kind string
	// Code is the Bot API error code, 0 for transport failures.
	Code int
	// Retry is set when repeating the call cannot produce a duplicate message.
	Retry bool
	// Wait is the pause Telegram asked for under flood control.
	Wait time.Duration
}

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Classify inspects err. A nil err yields the zero Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Failure{Kind: KindFlood, Code: http.StatusTooManyRequests, Retry: true, Wait: time.Duration(flood.RetryAfter) * time.Second}
	}
	if code := apiCode(err); code != 0 {
		kind := KindHTTP4xx
		if code >= 500 {
			kind = KindHTTP5xx
		}
		// a 5xx may still have delivered the message
		return Failure{Kind: kind, Code: code}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Kind: KindTimeout}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Failure{Kind: KindTimeout, Retry: true}
		}
		return Failure{Kind: KindDNS, Retry: dnsErr.IsTemporary}
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return Failure{Kind: KindTLS}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return Failure{Kind: KindTimeout, Retry: true}
		case opErr.Op == "dial":
			return Failure{Kind: KindDial, Retry: true}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Kind: KindTimeout, Retry: true}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Failure{Kind: KindTimeout, Retry: true}
	}
	return Failure{Kind: KindUnknown}
}

// ShouldRetry reports whether err is a transient failure worth another attempt.
func ShouldRetry(err error) bool { return Classify(err).Retry }

// Backoff returns the delay before the given 1-based retry: base grows linearly,
// and a flood wait from Telegram takes precedence when it is longer.
func Backoff(base time.Duration, attempt int, f Failure) time.Duration {
	return max(base*time.Duration(max(attempt, 1)), f.Wait)
}

// Redact hides bot tokens embedded in API URLs.
func Redact(msg string) string {
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

// apiCode extracts the Bot API error code, either typed or as the
// trailing "(code)" telebot appends to plain error strings.
func apiCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil || code < 400 || code > 599 {
		return 0
	}
	return code
}
