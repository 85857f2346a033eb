package orders

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("orders: cart is empty")
	ErrProductMissing    = errors.New("orders: product not found")
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	ErrOutOfStock        = errors.New("orders: product out of stock")
	ErrNonPositiveTotal  = errors.New("orders: total must be at least one minor unit")
	ErrAmountOutOfRange  = errors.New("orders: amount out of range")
	ErrInvalidQuantity   = errors.New("orders: invalid quantity")
	ErrCartItemMissing   = errors.New("orders: product not in cart")

	ErrOrderNotFound       = errors.New("orders: order not found")
	ErrReferenceMismatch   = errors.New("orders: payment reference mismatch")
	ErrReferenceAlreadySet = errors.New("orders: payment reference already set")
	ErrPaymentNotCompleted = errors.New("orders: payment not completed")
	ErrPaymentMismatch     = errors.New("orders: payment does not match order")
	ErrInvalidTransition   = errors.New("orders: invalid status transition")

	ErrStockRaceLost        = errors.New("orders: stock changed before finalization")
	ErrPaymentProvider      = errors.New("orders: payment provider unavailable")
	ErrAtomicityUnavailable = errors.New("orders: storage cannot run atomic transactions")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindSecurity
	KindConflict
	KindExternal
	KindFatal
)

var catalog = []struct {
	err  error
	kind Kind
	code string
}{
	{ErrAtomicityUnavailable, KindFatal, "ATOMICITY_UNAVAILABLE"},
	{ErrPaymentProvider, KindExternal, "PAYMENT_PROVIDER"},
	{ErrEmptyCart, KindValidation, "EMPTY_CART"},
	{ErrNonPositiveTotal, KindValidation, "NON_POSITIVE_TOTAL"},
	{ErrAmountOutOfRange, KindValidation, "AMOUNT_OUT_OF_RANGE"},
	{ErrInvalidQuantity, KindValidation, "INVALID_QUANTITY"},
	{ErrPaymentNotCompleted, KindValidation, "PAYMENT_NOT_COMPLETED"},
	{ErrReferenceMismatch, KindSecurity, "REFERENCE_MISMATCH"},
	{ErrPaymentMismatch, KindSecurity, "PAYMENT_MISMATCH"},
	{ErrProductMissing, KindNotFound, "PRODUCT_MISSING"},
	{ErrOrderNotFound, KindNotFound, "ORDER_NOT_FOUND"},
	{ErrCartItemMissing, KindNotFound, "CART_ITEM_MISSING"},
	{ErrInsufficientStock, KindConflict, "INSUFFICIENT_STOCK"},
	{ErrOutOfStock, KindConflict, "OUT_OF_STOCK"},
	{ErrStockRaceLost, KindConflict, "STOCK_RACE_LOST"},
	{ErrInvalidTransition, KindConflict, "INVALID_TRANSITION"},
	{ErrReferenceAlreadySet, KindConflict, "REFERENCE_ALREADY_SET"},
}

// KindOf classifies err by the first sentinel it wraps.
func KindOf(err error) Kind {
	for _, c := range catalog {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// CodeOf returns a stable machine-readable code, or "INTERNAL".
func CodeOf(err error) string {
	for _, c := range catalog {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type AmountOutOfRangeError struct {
	AmountCents int64
	MaxCents    int64
}

func (e *AmountOutOfRangeError) Error() string {
	return fmt.Sprintf("amount %d exceeds maximum %d", e.AmountCents, e.MaxCents)
}

func (e *AmountOutOfRangeError) Unwrap() error { return ErrAmountOutOfRange }

type PaymentNotCompletedError struct {
	Status string
}

func (e *PaymentNotCompletedError) Error() string {
	return fmt.Sprintf("payment not completed: status %s", e.Status)
}

func (e *PaymentNotCompletedError) Unwrap() error { return ErrPaymentNotCompleted }

type PaymentMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment %s mismatch: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *PaymentMismatchError) Unwrap() error { return ErrPaymentMismatch }

type StockRaceLostError struct {
	ProductID string
	Requested int
}

func (e *StockRaceLostError) Error() string {
	return fmt.Sprintf("stock for product %s dropped below %d before finalization", e.ProductID, e.Requested)
}

func (e *StockRaceLostError) Unwrap() error { return ErrStockRaceLost }

// ProviderError wraps a payment processor failure. It matches both
// ErrPaymentProvider and the processor's own error.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrPaymentProvider, e.Err} }
