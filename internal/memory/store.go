// Package memory is an in-process orders.Store. One mutex serializes all
// access; transactions stage their writes and apply them only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
)

type Option func(*Store)

// WithoutTransactions makes WithinTx fail with ErrAtomicityUnavailable,
// the way a storage deployment without transaction support would.
func WithoutTransactions() Option {
	return func(s *Store) { s.noTx = true }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu       sync.Mutex
	products map[string]orders.Product
	carts    map[string]map[string]int
	orders   map[string]*orders.Order
	seq      map[string]int64
	next     int64
	noTx     bool
	now      func() time.Time
}

var _ orders.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		products: make(map[string]orders.Product),
		carts:    make(map[string]map[string]int),
		orders:   make(map[string]*orders.Order),
		seq:      make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.products[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = cloneProduct(p)
}

// DeleteProduct removes a product while leaving cart rows pointing at it.
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Store) CartWithProducts(ctx context.Context, userID string) ([]orders.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[userID]
	out := make([]orders.CartLine, 0, len(cart))
	for pid, qty := range cart {
		line := orders.CartLine{ProductID: pid, Quantity: qty}
		if p, ok := s.products[pid]; ok {
			cp := cloneProduct(p)
			line.Product = &cp
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orders.ErrProductMissing, productID)
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (s *Store) CartQuantity(ctx context.Context, userID, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[userID][productID], nil
}

func (s *Store) SetCartQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", orders.ErrInvalidQuantity, qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		cart = make(map[string]int)
		s.carts[userID] = cart
	}
	cart[productID] = qty
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, userID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[userID][productID]; !ok {
		return false, nil
	}
	delete(s.carts[userID], productID)
	return true, nil
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *orders.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("memory: order id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("memory: order %s already exists", o.ID)
	}
	cp := cloneOrder(o)
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	s.orders[o.ID] = cp
	s.next++
	s.seq[o.ID] = s.next
	return nil
}

func (s *Store) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if o.PaymentRef != "" {
		return orders.ErrReferenceAlreadySet
	}
	o.PaymentRef = ref
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) GetOrderForUser(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.orders[ids[i]], s.orders[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.seq[ids[i]] > s.seq[ids[j]]
	})
	out := make([]orders.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneOrder(s.orders[id]))
	}
	return out, nil
}

func (s *Store) TransitionStatus(ctx context.Context, orderID string, to orders.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || !orders.CanTransition(o.Status, to) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = s.now()
	return true, nil
}

func cloneProduct(p orders.Product) orders.Product {
	if p.PriceCents != nil {
		v := *p.PriceCents
		p.PriceCents = &v
	}
	return p
}

func cloneOrder(o *orders.Order) *orders.Order {
	cp := *o
	cp.Items = append([]orders.LineItem(nil), o.Items...)
	return &cp
}
