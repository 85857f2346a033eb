package orders

import (
	"encoding/json"
	"time"
)

const (
	EventCheckoutCreated    = "OrderCheckoutCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderPaymentFailed = "OrderPaymentFailed"
	EventOrderCanceled      = "OrderCanceled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CheckoutCreatedPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	PaymentRef string    `json:"payment_ref"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	Items      []ItemQty `json:"items"`
}

type OrderPaidPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	PaymentRef string    `json:"payment_ref"`
	TotalCents int64     `json:"total_cents"`
	Source     string    `json:"source"` // confirm | webhook
	Items      []ItemQty `json:"items"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

func itemQtys(items []LineItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
