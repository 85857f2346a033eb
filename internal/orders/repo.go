package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the PostgreSQL Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const productColumns = `p.id::text, p.name, p.stock, p.price::text, p.price_cents, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Stock, &price, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (r *Repo) CartWithProducts(ctx context.Context, userID string) ([]CartLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.product_id::text, c.quantity,
		       p.id::text, p.name, p.stock, p.price::text, p.price_cents, p.created_at, p.updated_at
		FROM cart_items c
		LEFT JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.product_id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []CartLine
	for rows.Next() {
		var (
			l                    CartLine
			id, name, price      *string
			stock                *int
			priceCents           *int64
			createdAt, updatedAt *time.Time
		)
		if err := rows.Scan(&l.ProductID, &l.Quantity, &id, &name, &stock, &price, &priceCents, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if id != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("product %s price: %w", *id, err)
			}
			l.Product = &Product{
				ID: *id, Name: *name, Stock: *stock, Price: d, PriceCents: priceCents,
				CreatedAt: *createdAt, UpdatedAt: *updatedAt,
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, productID string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, productID))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrProductMissing, productID)
	}
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

// UpsertProduct is used by the operator CLI. Price is kept as the decimal
// mirror of PriceCents.
func (r *Repo) UpsertProduct(ctx context.Context, p Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, stock, price, price_cents)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, stock = EXCLUDED.stock, price = EXCLUDED.price,
		    price_cents = EXCLUDED.price_cents, updated_at = now()`,
		p.ID, p.Name, p.Stock, p.Price.StringFixed(2), p.PriceCents)
	return classify(err)
}

func (r *Repo) CartQuantity(ctx context.Context, userID, productID string) (int, error) {
	var q int
	err := r.DB.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return q, classify(err)
}

func (r *Repo) SetCartQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`,
		userID, productID, qty)
	return classify(err)
}

func (r *Repo) DeleteCartItem(ctx context.Context, userID, productID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, classify(err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *Repo) ClearCart(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return classify(err)
}

// CreateOrder writes the order row and its line-item snapshot together.
func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, string(o.Status), o.TotalCents, o.Currency,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return classify(err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, position, product_id, name, unit_price_cents, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, it.ProductID, it.Name, it.UnitPriceCents, it.Quantity)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (r *Repo) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_ref = $2, updated_at = now()
		WHERE id = $1 AND payment_ref IS NULL`, orderID, ref)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() != 1 {
		return ErrReferenceAlreadySet
	}
	return nil
}

const orderColumns = `id::text, user_id::text, status, total_cents, currency, COALESCE(payment_ref, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalCents, &o.Currency, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

func (r *Repo) GetOrderForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID)
}

func (r *Repo) getOrder(ctx context.Context, sql string, args ...any) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, sql, args...))
	if isNotFound(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, classify(err)
	}
	var list []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(list))
	for _, o := range list {
		out = append(out, *o)
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(list))
	ids := make([]string, 0, len(list))
	for _, o := range list {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id::text, product_id::text, name, unit_price_cents, quantity
		FROM order_items WHERE order_id::text = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			it      LineItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.UnitPriceCents, &it.Quantity); err != nil {
			return err
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *Repo) TransitionStatus(ctx context.Context, orderID string, to Status) (bool, error) {
	return transition(ctx, r.DB, orderID, to)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func transition(ctx context.Context, db execer, orderID string, to Status) (bool, error) {
	from := AllowedFrom(to)
	if len(from) == 0 {
		return false, nil
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	ct, err := db.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`, orderID, string(to), allowed)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err)
	}
	return ct.RowsAffected() == 1, nil
}

// isNotFound treats malformed ids like missing rows.
func isNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// classify maps the SQLSTATEs meaning "this connection cannot run
// read-write transactions" onto ErrAtomicityUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "0A000", "25006":
			return fmt.Errorf("%w: %s (%s)", ErrAtomicityUnavailable, pgErr.Message, pgErr.Code)
		}
	}
	return err
}
