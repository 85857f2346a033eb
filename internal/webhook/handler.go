// Package webhook receives payment processor notifications and drives the
// same finalization path as client confirmation.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "Stripe-Signature"
	maxBodyBytes    = 64 << 10
)

type Finalizer interface {
	OrderByID(ctx context.Context, orderID string) (*orders.Order, error)
	HandlePaymentSucceeded(ctx context.Context, orderID, userID, ref string) (*orders.Order, error)
	HandlePaymentFailed(ctx context.Context, orderID string) error
	HandlePaymentCanceled(ctx context.Context, orderID string) error
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Handler must be mounted on a route that no body-parsing middleware
// touches: the signature covers the exact bytes received.
type Handler struct {
	Service  Finalizer
	Verifier payments.WebhookVerifier
	Secret   string
	Dedup    Deduper
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.Logger)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: unreadable body"})
		return
	}
	ev, err := h.Verifier.VerifyWebhookSignature(payload, r.Header.Get(SignatureHeader), h.Secret)
	if errors.Is(err, payments.ErrEventDecode) {
		log.Error("webhook_event_undecodable", zap.Error(err))
		h.Metrics.WebhookEvent("undecodable", "error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
		return
	}
	if err != nil {
		log.Warn("webhook_signature_invalid", zap.Error(err))
		h.Metrics.WebhookEvent("unverified", "rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: " + err.Error()})
		return
	}

	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	ctx := logging.ContextWithLogger(r.Context(), log)

	if h.Dedup != nil {
		seen, err := h.Dedup.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn("webhook_dedup_unavailable", zap.Error(err))
		} else if seen {
			h.Metrics.WebhookEvent(ev.Type, "duplicate")
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
	}

	outcome, err := h.process(ctx, ev)
	if err != nil {
		log.Error("webhook_processing_failed", zap.Error(err))
		h.Metrics.WebhookEvent(ev.Type, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
		return
	}

	if h.Dedup != nil {
		if err := h.Dedup.Mark(ctx, ev.ID); err != nil {
			log.Warn("webhook_dedup_mark_failed", zap.Error(err))
		}
	}
	h.Metrics.WebhookEvent(ev.Type, outcome)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) process(ctx context.Context, ev *payments.Event) (string, error) {
	log := logging.FromContext(ctx, h.Logger)

	switch ev.Type {
	case payments.EventIntentSucceeded:
		if ev.Intent == nil {
			return "ignored", nil
		}
		orderID := ev.Intent.Metadata[payments.MetaOrderID]
		userID := ev.Intent.Metadata[payments.MetaUserID]
		if orderID == "" || userID == "" {
			log.Warn("webhook_missing_metadata", zap.String("payment_ref", ev.Intent.ID))
			return "ignored", nil
		}
		o, err := h.Service.OrderByID(ctx, orderID)
		if errors.Is(err, orders.ErrOrderNotFound) {
			log.Warn("webhook_order_not_found", zap.String("order_id", orderID))
			return "ignored", nil
		}
		if err != nil {
			return "", err
		}
		if o.Status == orders.StatusPaid {
			return "already_paid", nil
		}
		if _, err := h.Service.HandlePaymentSucceeded(ctx, orderID, userID, ev.Intent.ID); err != nil {
			return "", err
		}
		return "processed", nil

	case payments.EventIntentFailed, payments.EventIntentCanceled:
		if ev.Intent == nil || ev.Intent.Metadata[payments.MetaOrderID] == "" {
			return "ignored", nil
		}
		orderID := ev.Intent.Metadata[payments.MetaOrderID]
		var err error
		if ev.Type == payments.EventIntentFailed {
			err = h.Service.HandlePaymentFailed(ctx, orderID)
		} else {
			err = h.Service.HandlePaymentCanceled(ctx, orderID)
		}
		if err != nil {
			return "", err
		}
		return "processed", nil

	default:
		return "ignored", nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
