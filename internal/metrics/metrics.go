// Package metrics holds the Prometheus collectors of the checkout service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Checkout     *prometheus.CounterVec
	Finalize     *prometheus.CounterVec
	Webhook      *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New(namespace string) *Metrics {
	m := &Metrics{
		Checkout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_requests_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		Finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_total",
			Help:      "Payment finalizations by source and outcome.",
		}, []string{"source", "outcome"}),
		Webhook: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Checkout, m.Finalize, m.Webhook, m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Checkout.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FinalizeOutcome(source, outcome string) {
	if m == nil {
		return
	}
	m.Finalize.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.Webhook.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
