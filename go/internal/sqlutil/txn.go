package sqlutil

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunTx executes fn inside a transaction.
// If fn returns an error the tx rolls back, else it commits.
func RunTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx) // BEGIN
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		// ROLLBACK; a closed tx is not worth reporting over fn's error
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx) // COMMIT
}
