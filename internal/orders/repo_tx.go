package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// WithinTx runs fn in a read committed transaction with synchronous commit
// forced on, so a successful return means the unit is durable.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL synchronous_commit TO on`); err != nil {
		return classify(err)
	}
	if err := fn(ctx, &repoTx{tx: tx}); err != nil {
		return err
	}
	return classify(tx.Commit(ctx))
}

type repoTx struct{ tx pgx.Tx }

func (t *repoTx) LockOrder(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := t.tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&s)
	if isNotFound(err) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	return Status(s), nil
}

// DecrementStock is a compare-and-decrement; the WHERE clause is the guard.
func (t *repoTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *repoTx) ClearCart(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return classify(err)
}

func (t *repoTx) TransitionStatus(ctx context.Context, orderID string, to Status) (bool, error) {
	return transition(ctx, t.tx, orderID, to)
}

var _ Tx = (*repoTx)(nil)
