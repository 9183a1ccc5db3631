package licensing

import (
	"context"
	"errors"
	"time"

	"flowlytix/licensing/internal/ledger"
)

// Bounded retry for transient storage faults. Business-rule failures are never
// retried; retrying an activation is the caller's decision since activation is
// idempotent.
const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// withRetry runs fn, retrying only ErrStorageUnavailable with exponential
// backoff. Context cancellation aborts the wait.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := retryBackoff
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ledger.ErrStorageUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
