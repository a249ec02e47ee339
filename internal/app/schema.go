package app

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	schemaMaxRetries  = 3
	schemaBaseBackoff = 100 * time.Millisecond
	schemaMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// ensureTokenSchema creates the shared token table, retrying transient
// failures with exponential backoff.
func ensureTokenSchema(ctx context.Context, store schemaEnsurer, logger *slog.Logger) error {
	var err error
	for attempt := 0; attempt < schemaMaxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := sleepContext(ctx, schemaBackoff(attempt)); waitErr != nil {
				return waitErr
			}
		}

		err = store.EnsureSchema(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetrySchema(err) {
			return err
		}
		logger.Warn("transient error creating token table",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", schemaMaxRetries),
			slog.Any("error", err),
		)
	}
	return err
}

func schemaBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * schemaBaseBackoff
	if backoff > schemaMaxBackoff {
		backoff = schemaMaxBackoff
	}
	return backoff
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

func shouldRetrySchema(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
