package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New("checkout")
	m.CheckoutOutcome("ok")
	m.CheckoutOutcome("ok")
	m.FinalizeOutcome("webhook", "already_paid")
	m.WebhookEvent("payment_intent.succeeded", "processed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkout.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finalize.WithLabelValues("webhook", "already_paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Webhook.WithLabelValues("payment_intent.succeeded", "processed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CheckoutOutcome("ok")
		m.FinalizeOutcome("confirm", "paid")
		m.WebhookEvent("x", "ignored")
		m.ObserveHTTP("/x", http.MethodGet, 200, time.Millisecond)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("checkout")
	m.ObserveHTTP("/orders", http.MethodGet, 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "checkout_http_request_duration_seconds"))
}
