package services

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// RetryWithBackoff runs operation up to maxAttempts times, doubling the
// delay after each failure. Errors that domain.IsTemporary rejects are
// returned at once. Returns the error from the last attempt.
func RetryWithBackoff(ctx context.Context, operation func(attempt int) error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(attempt)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after %d attempts", attempt)
			}
			return nil
		}
		if !domain.IsTemporary(lastErr) {
			return lastErr
		}

		logger.Debug("attempt %d/%d failed: %v", attempt, maxAttempts, lastErr)
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
