package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

// withTx runs fn in one transaction. Dry runs and failures roll back; committed reports whether the transaction was committed.
func withTx(ctx context.Context, provider txProvider, dryRun bool, fn func(tx *sqlx.Tx) error) (committed bool, err error) {
	if provider == nil {
		return false, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return false, err
	}
	if dryRun {
		return false, nil
	}
	if err = tx.Commit(); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return true, nil
}
