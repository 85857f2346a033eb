package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Statements splits the embedded schema into individual statements.
func Statements() []string {
	var out []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, stmt := range Statements() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// CheckTransactions fails with orders.ErrAtomicityUnavailable when the
// server cannot run durable read-write transactions, e.g. a hot standby
// or a pooler that strips transaction control.
func CheckTransactions(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", orders.ErrAtomicityUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL synchronous_commit TO on`); err != nil {
		return fmt.Errorf("%w: %v", orders.ErrAtomicityUnavailable, err)
	}
	var inRecovery bool
	if err := tx.QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery); err != nil {
		return fmt.Errorf("check recovery state: %w", err)
	}
	if inRecovery {
		return fmt.Errorf("%w: server is a read-only standby", orders.ErrAtomicityUnavailable)
	}
	var readOnly string
	if err := tx.QueryRow(ctx, `SHOW transaction_read_only`).Scan(&readOnly); err != nil {
		return fmt.Errorf("check read only: %w", err)
	}
	if readOnly == "on" {
		return fmt.Errorf("%w: transactions default to read only", orders.ErrAtomicityUnavailable)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", orders.ErrAtomicityUnavailable, err)
	}
	return nil
}
