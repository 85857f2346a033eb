package orders

import (
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
	// PriceCents is authoritative. Legacy rows carry only Price.
	PriceCents *int64    `json:"priceCents,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UnitPriceCents returns the authoritative minor-unit price, deriving it
// from the decimal mirror only for legacy records.
func (p Product) UnitPriceCents() int64 {
	if p.PriceCents != nil {
		return *p.PriceCents
	}
	return money.ToCents(p.Price)
}

// CartLine is one cart entry joined with its product. Product is nil when
// the referenced product no longer resolves.
type CartLine struct {
	ProductID string   `json:"productId"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product"`
}

// LineItem is the frozen snapshot stored on an order.
type LineItem struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

type Draft struct {
	Items      []LineItem `json:"items"`
	TotalCents int64      `json:"totalCents"`
}

type Order struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Status     Status     `json:"status"`
	Items      []LineItem `json:"items"`
	TotalCents int64      `json:"totalCents"`
	Currency   string     `json:"currency"`
	PaymentRef string     `json:"paymentRef,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type CartViewLine struct {
	ProductID     string   `json:"productId"`
	Quantity      int      `json:"quantity"`
	Product       *Product `json:"product"`
	SubtotalCents int64    `json:"subtotalCents"`
}

type CartView struct {
	UserID     string         `json:"userId"`
	Items      []CartViewLine `json:"items"`
	TotalCents int64          `json:"totalCents"`
}

type CheckoutOptions struct {
	PaymentMethodID   string
	SavePaymentMethod bool
	Force3DS          bool
}

type CheckoutResult struct {
	Order        *Order `json:"order"`
	ClientSecret string `json:"clientSecret"`
}
