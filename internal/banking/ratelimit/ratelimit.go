// Package ratelimit wraps single outbound vendor calls with rate-limit
// aware retries. It is deliberately not a generic retry: re-issuing
// non-idempotent vendor calls (agreement creation, deletion) on arbitrary
// errors risks duplicate side effects, so only detected rate limiting is
// retried here and everything else propagates immediately.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxAttempts = 3

// Limited marks an error as a vendor rate-limit signal. RetryAfter is the
// vendor-suggested resume delay, zero when the vendor gave none.
type Limited struct {
	RetryAfter time.Duration
	Err        error
}

func (l *Limited) Error() string {
	if l.Err != nil {
		return fmt.Sprintf("rate limited: %v", l.Err)
	}
	return "rate limited"
}

func (l *Limited) Unwrap() error { return l.Err }

// FromResponse inspects a vendor response for rate limiting. It returns
// nil when resp is not a rate-limit signal. resetHeaders are checked in
// order before the standard Retry-After header; GoCardless for example
// reports seconds until the per-account quota resets in
// HTTP_X_RATELIMIT_ACCOUNT_SUCCESS_RESET.
func FromResponse(resp *http.Response, resetHeaders ...string) *Limited {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	for _, h := range resetHeaders {
		if delay, ok := parseSeconds(resp.Header.Get(h)); ok {
			return &Limited{RetryAfter: delay}
		}
	}
	if delay, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		return &Limited{RetryAfter: delay}
	}
	return &Limited{}
}

func parseSeconds(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) (time.Duration, bool) {
	if delay, ok := parseSeconds(value); ok {
		return delay, true
	}
	when, err := http.ParseTime(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// Do issues fn, retrying only rate-limit errors up to the attempt
// ceiling. The resume delay comes from the vendor hint when present,
// otherwise from capped exponential backoff with jitter. When the ceiling
// is exhausted the original rate-limit error surfaces. onRetry, when
// non-nil, is invoked once per retry (metrics hook).
func Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func()) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.Reset()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var limited *Limited
		if !errors.As(err, &limited) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := limited.RetryAfter
		if delay <= 0 {
			delay = policy.NextBackOff()
		}
		if onRetry != nil {
			onRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
