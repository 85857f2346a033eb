package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// intentAPI is the slice of the Stripe client used here.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Stripe struct {
	intents intentAPI
}

func NewStripe(secretKey string) *Stripe {
	sc := client.New(secretKey, nil)
	return &Stripe{intents: sc.PaymentIntents}
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(p.PaymentMethodID)
	}
	if p.SavePaymentMethod {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	if p.Force3DS {
		params.PaymentMethodOptions = &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String("any"),
			},
		}
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) RetrievePaymentIntent(ctx context.Context, ref string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(ref, params)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return toIntent(pi), nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the raw
// payload. API version mismatches are tolerated since only the intent
// fields below are read.
func (s *Stripe) VerifyWebhookSignature(payload []byte, header, secret string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && ev.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: payment intent: %v", ErrEventDecode, err)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	md := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		md[k] = v
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     md,
	}
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == 0 || se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrUnavailable, se.Msg)
		}
		return fmt.Errorf("%w: %s", ErrRejected, se.Msg)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
