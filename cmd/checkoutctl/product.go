package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func productCmd(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products",
	}
	cmd.AddCommand(productUpsertCmd(connect))
	return cmd
}

func productUpsertCmd(connect connectFunc) *cobra.Command {
	var (
		id, name, price string
		stock           int
	)
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or replace a product",
		Long: `Create or replace a product. The price is given in major units and
stored both as exact minor units and as its decimal mirror.

Examples:
  checkoutctl product upsert --name "Mug" --stock 10 --price 50.00
  checkoutctl product upsert --id 7d9f... --name "Mug" --stock 0 --price 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildProduct(id, name, stock, price)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := (&orders.Repo{DB: pool}).UpsertProduct(ctx, p); err != nil {
				return fmt.Errorf("upsert product: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tstock=%d\t%s\n", p.ID, p.Name, p.Stock, money.Format(*p.PriceCents, config.Load().Currency))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "product id (uuid); generated when empty")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&stock, "stock", 0, "units on hand")
	cmd.Flags().StringVar(&price, "price", "", "unit price in major units, e.g. 50.00")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func buildProduct(id, name string, stock int, price string) (orders.Product, error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return orders.Product{}, fmt.Errorf("--id: %w", err)
	}
	if name == "" {
		return orders.Product{}, fmt.Errorf("--name is required")
	}
	if stock < 0 {
		return orders.Product{}, fmt.Errorf("--stock must be >= 0, got %d", stock)
	}
	cents, err := money.ParseCents(price)
	if err != nil {
		return orders.Product{}, fmt.Errorf("--price: %w", err)
	}
	return orders.Product{
		ID:         id,
		Name:       name,
		Stock:      stock,
		Price:      money.FromCents(cents),
		PriceCents: &cents,
	}, nil
}
