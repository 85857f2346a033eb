package orders

import (
	"context"
	"fmt"
	"math"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
)

func (s *Service) GetCart(ctx context.Context, userID string) (*CartView, error) {
	lines, err := s.Store.CartWithProducts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	v := &CartView{UserID: userID, Items: make([]CartViewLine, 0, len(lines))}
	for _, l := range lines {
		line := CartViewLine{ProductID: l.ProductID, Quantity: l.Quantity, Product: l.Product}
		ok := true
		if l.Product != nil {
			line.SubtotalCents, ok = money.MulCents(l.Product.UnitPriceCents(), l.Quantity)
		}
		if ok {
			v.TotalCents, ok = money.AddCents(v.TotalCents, line.SubtotalCents)
		}
		if !ok {
			return nil, &AmountOutOfRangeError{AmountCents: math.MaxInt64, MaxCents: money.MaxChargeCents}
		}
		v.Items = append(v.Items, line)
	}
	return v, nil
}

// AddItem adds qty on top of what the cart already holds for the product.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	p, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
	}
	have, err := s.Store.CartQuantity(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if have+qty > p.Stock {
		return nil, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: have + qty}
	}
	if err := s.Store.SetCartQuantity(ctx, userID, productID, have+qty); err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}
	return s.GetCart(ctx, userID)
}

// UpdateItem sets an absolute quantity. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	have, err := s.Store.CartQuantity(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if have == 0 {
		return nil, ErrCartItemMissing
	}
	if qty == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	p, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if qty > p.Stock {
		return nil, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: qty}
	}
	if err := s.Store.SetCartQuantity(ctx, userID, productID, qty); err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}
	return s.GetCart(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*CartView, error) {
	removed, err := s.Store.DeleteCartItem(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	if !removed {
		return nil, ErrCartItemMissing
	}
	return s.GetCart(ctx, userID)
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	if err := s.Store.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
