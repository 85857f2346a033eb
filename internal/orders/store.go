package orders

import "context"

// Store is the storage the checkout flow runs against. Repo implements it
// on PostgreSQL; the memory package provides an in-process version.
type Store interface {
	// CartWithProducts returns the user's cart lines joined with product
	// data, ordered by product id.
	CartWithProducts(ctx context.Context, userID string) ([]CartLine, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	// CartQuantity returns 0 when the product is not in the cart.
	CartQuantity(ctx context.Context, userID, productID string) (int, error)
	SetCartQuantity(ctx context.Context, userID, productID string, qty int) error
	DeleteCartItem(ctx context.Context, userID, productID string) (bool, error)
	ClearCart(ctx context.Context, userID string) error

	CreateOrder(ctx context.Context, o *Order) error
	// SetPaymentRef stores ref only while the order has none.
	SetPaymentRef(ctx context.Context, orderID, ref string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderForUser(ctx context.Context, userID, orderID string) (*Order, error)
	// ListOrders returns newest first.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	// TransitionStatus is a CAS guarded by AllowedFrom(to). It reports
	// whether the row changed.
	TransitionStatus(ctx context.Context, orderID string, to Status) (bool, error)

	// WithinTx runs fn in one atomic unit. An error from fn rolls back every
	// write made through tx. Stores that cannot provide this return
	// ErrAtomicityUnavailable.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// LockOrder locks the order row for the rest of the unit and returns
	// its current status.
	LockOrder(ctx context.Context, orderID string) (Status, error)
	// DecrementStock subtracts qty only if stock >= qty. ok is false when
	// the condition failed.
	DecrementStock(ctx context.Context, productID string, qty int) (ok bool, err error)
	ClearCart(ctx context.Context, userID string) error
	TransitionStatus(ctx context.Context, orderID string, to Status) (bool, error)
}
