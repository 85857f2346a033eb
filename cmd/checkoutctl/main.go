package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operator tooling for the checkout service database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN (defaults to $POSTGRES_DSN)")

	connect := func(ctx context.Context) (*pgxpool.Pool, error) {
		if dsn == "" {
			return nil, fmt.Errorf("no database: pass --dsn or set POSTGRES_DSN")
		}
		return postgres.Connect(ctx, dsn)
	}

	cmd.AddCommand(migrateCmd(connect))
	cmd.AddCommand(checkTxCmd(connect))
	cmd.AddCommand(productCmd(connect))
	return cmd
}

type connectFunc func(ctx context.Context) (*pgxpool.Pool, error)

func migrateCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(postgres.Statements()))
			return nil
		},
	}
}

func checkTxCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check-tx",
		Short: "Verify the database accepts read-write transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.CheckTransactions(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok: read-write transactions available")
			return nil
		},
	}
}
