package orders

import (
	"context"
	"fmt"
	"math"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
)

// BuildDraft prices the user's cart against current inventory. It never
// writes, so checkout can call it on every retry.
func (s *Service) BuildDraft(ctx context.Context, userID string) (Draft, error) {
	lines, err := s.Store.CartWithProducts(ctx, userID)
	if err != nil {
		return Draft{}, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return Draft{}, ErrEmptyCart
	}

	d := Draft{Items: make([]LineItem, 0, len(lines))}
	for _, l := range lines {
		p := l.Product
		if p == nil {
			return Draft{}, fmt.Errorf("%w: %s", ErrProductMissing, l.ProductID)
		}
		if p.Stock < l.Quantity {
			return Draft{}, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: l.Quantity}
		}

		unit := p.UnitPriceCents()
		sub, ok := money.MulCents(unit, l.Quantity)
		if ok {
			d.TotalCents, ok = money.AddCents(d.TotalCents, sub)
		}
		if !ok {
			return Draft{}, &AmountOutOfRangeError{AmountCents: math.MaxInt64, MaxCents: money.MaxChargeCents}
		}
		d.Items = append(d.Items, LineItem{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: unit,
			Quantity:       l.Quantity,
		})
	}

	if d.TotalCents < 1 {
		return Draft{}, ErrNonPositiveTotal
	}
	return d, nil
}
