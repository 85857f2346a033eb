package memory

import (
	"context"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
)

// WithinTx holds the store mutex for the whole unit, which gives the same
// serialization as row locks. Writes go to a staging area and reach the
// store only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if s.noTx {
		return orders.ErrAtomicityUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:       s,
		stock:   make(map[string]int),
		cleared: make(map[string]bool),
		status:  make(map[string]orders.Status),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

type tx struct {
	s       *Store
	stock   map[string]int
	cleared map[string]bool
	status  map[string]orders.Status
}

func (t *tx) LockOrder(ctx context.Context, orderID string) (orders.Status, error) {
	if st, ok := t.status[orderID]; ok {
		return st, nil
	}
	o, ok := t.s.orders[orderID]
	if !ok {
		return "", orders.ErrOrderNotFound
	}
	return o.Status, nil
}

func (t *tx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	cur, ok := t.stock[productID]
	if !ok {
		p, exists := t.s.products[productID]
		if !exists {
			return false, nil
		}
		cur = p.Stock
	}
	if cur < qty {
		return false, nil
	}
	t.stock[productID] = cur - qty
	return true, nil
}

func (t *tx) ClearCart(ctx context.Context, userID string) error {
	t.cleared[userID] = true
	return nil
}

func (t *tx) TransitionStatus(ctx context.Context, orderID string, to orders.Status) (bool, error) {
	cur, err := t.LockOrder(ctx, orderID)
	if err != nil {
		return false, nil
	}
	if !orders.CanTransition(cur, to) {
		return false, nil
	}
	t.status[orderID] = to
	return true, nil
}

func (t *tx) commit() {
	now := t.s.now()
	for pid, v := range t.stock {
		p := t.s.products[pid]
		p.Stock = v
		p.UpdatedAt = now
		t.s.products[pid] = p
	}
	for uid := range t.cleared {
		delete(t.s.carts, uid)
	}
	for oid, st := range t.status {
		o := t.s.orders[oid]
		o.Status = st
		o.UpdatedAt = now
	}
}
