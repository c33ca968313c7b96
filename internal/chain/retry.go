package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrRetriesExhausted wraps the last error after the retry budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy retries rate-limited RPC calls with exponential backoff.
// Only rate-limit signals are retried; any other error propagates
// immediately so genuine failures are not masked.
type RetryPolicy struct {
	// MaxAttempts is the total attempt count, including the first call.
	MaxAttempts int

	// BaseDelay is the backoff unit; the delay doubles each attempt.
	BaseDelay time.Duration

	// Sleep is injectable for tests. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches the free-tier RPC budget the indexer runs
// against: 5 attempts, 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
	}
}

// Do invokes fn, retrying on rate-limit errors until the attempt budget
// is exhausted. The label appears in retry log lines.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, label string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRateLimited(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.BaseDelay << attempt
		if logger != nil {
			logger.Warn("rate limited, backing off",
				"call", label,
				"attempt", attempt+1,
				"max_attempts", p.MaxAttempts,
				"delay", delay,
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: %w: %w", label, ErrRetriesExhausted, lastErr)
}

// IsRateLimited reports whether err looks like a transport-level
// "too many requests" response from the RPC provider.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}

	msg := err.Error()
	return strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "429")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
