package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Checkout persists a new order in requires_payment and opens a payment
// intent for its exact total. If the processor call fails the order is
// left without a reference; a retry creates a fresh order.
func (s *Service) Checkout(ctx context.Context, userID string, opts CheckoutOptions) (res *CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "Checkout")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.Metrics.CheckoutOutcome(CodeOf(err))
		} else {
			s.Metrics.CheckoutOutcome("ok")
		}
		span.End()
	}()

	draft, err := s.BuildDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.TotalCents > money.MaxChargeCents {
		return nil, &AmountOutOfRangeError{AmountCents: draft.TotalCents, MaxCents: money.MaxChargeCents}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     StatusRequiresPayment,
		Items:      draft.Items,
		TotalCents: draft.TotalCents,
		Currency:   s.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int64("order.total_cents", o.TotalCents))

	pctx, cancel := s.paymentCtx(ctx)
	intent, err := s.Payments.CreatePaymentIntent(pctx, payments.CreateIntentParams{
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		Metadata: map[string]string{
			payments.MetaOrderID: o.ID,
			payments.MetaUserID:  userID,
		},
		PaymentMethodID:   opts.PaymentMethodID,
		SavePaymentMethod: opts.SavePaymentMethod,
		Force3DS:          opts.Force3DS,
	})
	cancel()
	if err != nil {
		s.log(ctx).Warn("payment_intent_create_failed", zap.String("order_id", o.ID), zap.Error(err))
		return nil, &ProviderError{Op: "create intent", Err: err}
	}

	if err := s.Store.SetPaymentRef(ctx, o.ID, intent.ID); err != nil {
		return nil, fmt.Errorf("store payment reference: %w", err)
	}
	o.PaymentRef = intent.ID

	s.log(ctx).Info("checkout_created",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.String("payment_ref", intent.ID),
		zap.Int64("total_cents", o.TotalCents),
	)
	s.publish(ctx, TopicCheckoutCreated, EventCheckoutCreated, o.ID, CheckoutCreatedPayload{
		OrderID:    o.ID,
		UserID:     userID,
		PaymentRef: intent.ID,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		Items:      itemQtys(o.Items),
	})

	return &CheckoutResult{Order: o, ClientSecret: intent.ClientSecret}, nil
}
