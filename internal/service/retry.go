package service

import (
	"context"
	"net/http"
	"time"
)

// RetryPolicy decides whether and when a failed remote call is repeated.
// Attempts are counted from 1 and include the first call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable reports whether a response status is worth another attempt.
	Retryable func(statusCode int) bool
}

// DefaultRetryPolicy returns the policy used when the configuration leaves it unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsTransientStatus,
	}
}

// IsTransientStatus reports whether a status is a rate limit or a server error.
func IsTransientStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether statusCode is eligible for retry at all.
func (p RetryPolicy) IsRetryable(statusCode int) bool {
	if p.Retryable == nil {
		return IsTransientStatus(statusCode)
	}
	return p.Retryable(statusCode)
}

// ShouldRetry reports whether the call that just failed with statusCode on the
// given attempt gets another attempt.
func (p RetryPolicy) ShouldRetry(statusCode, attempt int) bool {
	return attempt < p.MaxAttempts && p.IsRetryable(statusCode)
}

// Delay returns how long to wait after the given failed attempt:
// BaseDelay doubled per attempt, capped at MaxDelay when MaxDelay is set.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
