package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// every runs fn once immediately and then on each tick until ctx ends.
func every(ctx context.Context, logger *slog.Logger, interval time.Duration, operation string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "worker iteration failed",
				"operation", operation,
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
