package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	SourceConfirm = "confirm"
	SourceWebhook = "webhook"
)

// errAlreadyPaid rolls the unit back when another finalizer won.
var errAlreadyPaid = errors.New("orders: already paid")

// Confirm is the client-driven path: the user presents the intent id they
// completed payment for.
func (s *Service) Confirm(ctx context.Context, userID, orderID, ref string) (*Order, error) {
	return s.finalize(ctx, SourceConfirm, orderID, userID, ref)
}

// HandlePaymentSucceeded is shared by Confirm and the webhook. Both may run
// for the same order in any order; exactly one performs the finalization
// and the other returns the paid order.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, orderID, userID, ref string) (*Order, error) {
	return s.finalize(ctx, SourceWebhook, orderID, userID, ref)
}

func (s *Service) finalize(ctx context.Context, source, orderID, userID, ref string) (o *Order, err error) {
	ctx, span := tracer.Start(ctx, "Finalize")
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("finalize.source", source),
	)
	outcome := "paid"
	defer func() {
		if err != nil {
			outcome = CodeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.Metrics.FinalizeOutcome(source, outcome)
		span.End()
	}()

	log := s.log(ctx).With(zap.String("order_id", orderID), zap.String("user_id", userID), zap.String("source", source))

	o, err = s.Store.GetOrderForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusPaid {
		outcome = "already_paid"
		return o, nil
	}
	if o.PaymentRef == "" || o.PaymentRef != ref {
		log.Warn("payment_reference_mismatch", zap.String("stored_ref", o.PaymentRef), zap.String("presented_ref", ref))
		return nil, ErrReferenceMismatch
	}

	pctx, cancel := s.paymentCtx(ctx)
	intent, err := s.Payments.RetrievePaymentIntent(pctx, ref)
	cancel()
	if err != nil {
		log.Warn("payment_intent_retrieve_failed", zap.Error(err))
		return nil, &ProviderError{Op: "retrieve intent", Err: err}
	}
	if intent.Status != payments.IntentSucceeded {
		return nil, &PaymentNotCompletedError{Status: intent.Status}
	}
	if err := s.matchIntent(o, intent); err != nil {
		var pm *PaymentMismatchError
		if errors.As(err, &pm) {
			log.Warn("payment_mismatch", zap.String("field", pm.Field), zap.String("expected", pm.Expected), zap.String("actual", pm.Actual))
		}
		return nil, err
	}

	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return applyPaid(ctx, tx, o)
	})
	switch {
	case errors.Is(err, errAlreadyPaid):
		outcome = "already_paid"
		log.Info("order_already_finalized")
	case errors.Is(err, ErrAtomicityUnavailable):
		log.Error("atomic_finalization_unavailable", zap.Error(err))
		return nil, err
	case err != nil:
		log.Warn("finalization_aborted", zap.Error(err))
		return nil, err
	default:
		log.Info("order_finalized", zap.String("payment_ref", ref), zap.Int64("total_cents", o.TotalCents))
		s.invalidate(ctx, o.ID)
		s.publish(ctx, TopicOrderPaid, EventOrderPaid, o.ID, OrderPaidPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			PaymentRef: ref,
			TotalCents: o.TotalCents,
			Source:     source,
			Items:      itemQtys(o.Items),
		})
	}

	paid, err := s.Store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	return paid, nil
}

func (s *Service) matchIntent(o *Order, in *payments.Intent) error {
	if in.AmountCents != o.TotalCents {
		return &PaymentMismatchError{Field: "amount", Expected: strconv.FormatInt(o.TotalCents, 10), Actual: strconv.FormatInt(in.AmountCents, 10)}
	}
	if !strings.EqualFold(in.Currency, s.Currency) {
		return &PaymentMismatchError{Field: "currency", Expected: s.Currency, Actual: in.Currency}
	}
	if got := in.Metadata[payments.MetaOrderID]; got != o.ID {
		return &PaymentMismatchError{Field: "metadata.orderId", Expected: o.ID, Actual: got}
	}
	if got := in.Metadata[payments.MetaUserID]; got != o.UserID {
		return &PaymentMismatchError{Field: "metadata.userId", Expected: o.UserID, Actual: got}
	}
	return nil
}

// applyPaid is the atomic unit: lock the order, decrement every line
// conditionally, clear the cart, then CAS the status to paid.
func applyPaid(ctx context.Context, tx Tx, o *Order) error {
	status, err := tx.LockOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if status == StatusPaid {
		return errAlreadyPaid
	}
	if !CanTransition(status, StatusPaid) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusPaid)
	}

	// Fixed lock order across concurrent finalizers.
	items := append([]LineItem(nil), o.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	for _, it := range items {
		ok, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock %s: %w", it.ProductID, err)
		}
		if !ok {
			return &StockRaceLostError{ProductID: it.ProductID, Requested: it.Quantity}
		}
	}

	if err := tx.ClearCart(ctx, o.UserID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	ok, err := tx.TransitionStatus(ctx, o.ID, StatusPaid)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if !ok {
		return errAlreadyPaid
	}
	return nil
}

// HandlePaymentFailed moves the order to failed unless it is paid.
func (s *Service) HandlePaymentFailed(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusFailed, TopicPaymentFailed, EventOrderPaymentFailed)
}

// HandlePaymentCanceled moves the order to canceled unless it is paid.
func (s *Service) HandlePaymentCanceled(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusCanceled, TopicOrderCanceled, EventOrderCanceled)
}

func (s *Service) transition(ctx context.Context, orderID string, to Status, topic, eventType string) error {
	changed, err := s.Store.TransitionStatus(ctx, orderID, to)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", orderID, to, err)
	}
	log := s.log(ctx).With(zap.String("order_id", orderID), zap.String("status", string(to)))
	if !changed {
		log.Info("status_transition_skipped")
		return nil
	}
	log.Info("status_transitioned")
	s.invalidate(ctx, orderID)
	s.publish(ctx, topic, eventType, orderID, StatusChangedPayload{OrderID: orderID, Status: to})
	return nil
}
