package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

const (
	pqLockNotAvailable = "55P03"
	pqDeadlockDetected = "40P01"
)

// setLockTimeout bounds row lock waits for the rest of the current transaction.
func setLockTimeout(ctx context.Context, exec sqlx.ExecerContext, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	query := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	if _, err := exec.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

// translateLockError surfaces lock waits and deadlocks as consistency errors.
func translateLockError(err error, message string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqDeadlockDetected:
			return appErrors.Wrap(err, appErrors.ErrConsistency.Code, appErrors.ErrConsistency.Status, message)
		}
	}
	return err
}
