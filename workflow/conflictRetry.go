package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/sirupsen/logrus"
)

const (
	conflictRetryAttempts = 3
	conflictRetryBaseWait = 50 * time.Millisecond
)

// RunWithConflictRetry re-runs fn when it loses a lock race (deadlock or
// lock wait timeout). Any other error surfaces immediately; business
// errors are not retryable because the outcome would not change.
func RunWithConflictRetry[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	wait := conflictRetryBaseWait

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !models.IsConcurrencyConflict(err) || attempt >= conflictRetryAttempts {
			return zero, err
		}

		config.GetLogger().WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
		}).Warn("retrying after concurrency conflict")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}
