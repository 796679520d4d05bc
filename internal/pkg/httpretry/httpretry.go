// Package httpretry holds the structured error and backoff policy shared by
// the outbound HTTP clients.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Error represents a failed attempt against a remote HTTP API.
type Error struct {
	StatusCode int
	Retriable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("API error: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RetriableStatus reports whether a response status is worth another attempt.
func RetriableStatus(code int) bool {
	return code == http.StatusServiceUnavailable ||
		code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= 500
}

// Policy bounds the retry loop. Delay doubles after each failed attempt.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Do runs fn until it succeeds, fails with a non-retriable *Error, the retries
// are exhausted, or ctx is done. Errors that are not *Error are treated as
// transport failures and retried.
func Do(ctx context.Context, p Policy, log *slog.Logger, op string, fn func(ctx context.Context, attempt int) error) error {
	if log == nil {
		log = slog.Default()
	}

	attempt := 0
	operation := func() error {
		err := fn(ctx, attempt)
		attempt++
		if err == nil {
			return nil
		}

		var apiErr *Error
		if errors.As(err, &apiErr) && !apiErr.Retriable {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("request attempt failed", "op", op, "attempt", attempt, "retry_in", delay, "error", err)
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	if err == nil || ctx.Err() != nil {
		return err
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && !apiErr.Retriable {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempt, err)
}

// backOff doubles Delay after each failure, without jitter, for at most
// MaxRetries retries.
func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
