package grpctransport

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy implements the exponential backoff recommended in
// SPEC_FULL.md §7: 200ms initial, factor 2, max 5 attempts. Only
// idempotent operations (RegisterTags, GetLastValue, Subscribe
// re-establishment) use it; Publish is not idempotent and is attempted
// exactly once per call.
type RetryPolicy struct {
	InitialDelay time.Duration
	Factor       float64
	MaxAttempts  int
}

// DefaultRetryPolicy matches SPEC_FULL.md §7 exactly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialDelay: 200 * time.Millisecond, Factor: 2, MaxAttempts: 5}
}

// Do calls fn up to p.MaxAttempts times, backing off between attempts, and
// returns the last error if every attempt fails. It stops early if ctx is
// cancelled.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	delay := p.InitialDelay
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
	return err
}

// reconnectLimiter bounds how often a SubscriptionGroup may re-dial after a
// stream drop, so a persistently unreachable server does not spin the
// client in a tight retry loop. One token per second, burst of 3, is a
// steady-state ceiling independent of the per-attempt exponential backoff
// RetryPolicy already applies to a single reconnect sequence.
func newReconnectLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(1), 3)
}
