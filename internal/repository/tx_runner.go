package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teamauresta/agent-harbor/internal/service"
)

// TxRunner provides a transactional chunk store using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx runs fn against a chunk store bound to a single transaction,
// committing on nil and rolling back on error.
func (r *TxRunner) WithTx(ctx context.Context, fn func(store service.ChunkStore) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(NewChunkRepositoryWithTx(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
