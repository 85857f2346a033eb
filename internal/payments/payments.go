// Package payments defines the payment processor contract consumed by the
// checkout flow and a Stripe implementation of it.
package payments

import (
	"context"
	"errors"
)

const (
	MetaOrderID = "orderId"
	MetaUserID  = "userId"

	IntentSucceeded = "succeeded"

	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

var (
	// ErrUnavailable marks transient failures (network, timeout, 5xx,
	// rate limiting). Callers may retry.
	ErrUnavailable = errors.New("payments: processor unavailable")
	// ErrRejected marks requests the processor refused.
	ErrRejected = errors.New("payments: request rejected")
	// ErrSignature marks webhook payloads that failed verification.
	ErrSignature = errors.New("payments: invalid webhook signature")
	// ErrEventDecode marks a verified event whose object could not be
	// decoded.
	ErrEventDecode = errors.New("payments: undecodable webhook event")
)

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

type CreateIntentParams struct {
	AmountCents       int64
	Currency          string
	Metadata          map[string]string
	PaymentMethodID   string
	SavePaymentMethod bool
	Force3DS          bool
}

type Event struct {
	ID   string
	Type string
	// Intent is set for payment_intent.* events.
	Intent *Intent
}

type Processor interface {
	CreatePaymentIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, ref string) (*Intent, error)
}

type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, header, secret string) (*Event, error)
}
