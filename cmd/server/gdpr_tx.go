package main

import (
	"context"
	"database/sql"
	"time"

	"batisecure/internal/gdpr/service"
	gdprstore "batisecure/internal/gdpr/store"
	dErrors "batisecure/pkg/domain-errors"
)

const defaultErasureTxTimeout = 15 * time.Second

// gdprPostgresTx runs erasure transactions against PostgreSQL. All store
// interfaces inside the transaction are served by one PostgresStore bound
// to the open *sql.Tx.
type gdprPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newGDPRPostgresTx(db *sql.DB) *gdprPostgresTx {
	return &gdprPostgresTx{db: db}
}

func (t *gdprPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, s service.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultErasureTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	txStore := gdprstore.NewPostgresTx(tx)
	stores := service.Stores{
		Consents:  txStore,
		Requests:  txStore,
		Logs:      txStore,
		Retention: txStore,
		Breaches:  txStore,
		Subjects:  txStore,
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}
	return tx.Commit()
}
