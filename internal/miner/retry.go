package miner

import (
	"context"
	"time"

	"github.com/danielpatrickdp/scenario-miner/internal/logging"
)

// #region policy

// RetryPolicy decides whether to retry a reasoning call and how long to wait.
type RetryPolicy struct {
	MaxAttempts      int
	ParseBackoff     time.Duration
	TransportBackoff time.Duration
}

// DefaultRetryPolicy allows 3 attempts with 1s/2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, ParseBackoff: time.Second, TransportBackoff: 2 * time.Second}
}

// #endregion

// #region should-retry

// ShouldRetry returns whether another attempt is allowed and the wait before it.
// attempts contains every attempt so far, including the one just made.
func (p RetryPolicy) ShouldRetry(attempts []logging.Attempt) (bool, time.Duration) {
	if len(attempts) == 0 {
		return false, 0
	}
	if len(attempts) >= p.MaxAttempts {
		return false, 0
	}

	switch attempts[len(attempts)-1].Result {
	case logging.ResultOK:
		return false, 0
	case logging.ResultTransport:
		return true, p.TransportBackoff
	default:
		return true, p.ParseBackoff
	}
}

// #endregion

// #region sleep

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion
