package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultPaymentTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/ariefcatur/go-shop-checkout/internal/orders")

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) bool
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string) error
}

// Service runs checkout and payment finalization. Store, Payments and
// Currency are required; the rest are optional.
type Service struct {
	Store          Store
	Payments       payments.Processor
	Currency       string
	PaymentTimeout time.Duration

	Publisher Publisher
	Cache     StatusCache
	Producer  string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, s.Logger)
}

func (s *Service) paymentCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.PaymentTimeout
	if d <= 0 {
		d = DefaultPaymentTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.Publisher == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Producer,
		CorrelationID: orderID,
		Payload:       kafka.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	if !s.Publisher.Publish(topic, PartitionKey(orderID), kafka.MustMarshal(ev), kafka.EventHeaders(eventType, ev.EventVersion)...) {
		s.log(ctx).Warn("event_not_published", zap.String("topic", topic), zap.String("order_id", orderID))
	}
}

func (s *Service) invalidate(ctx context.Context, orderID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, orderID); err != nil {
		s.log(ctx).Warn("status_cache_invalidate_failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.Store.ListOrders(ctx, userID)
}

// GetOrder is scoped to the user. Another user's order is ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.Store.GetOrderForUser(ctx, userID, orderID)
}

// OrderByID is unscoped; only trusted callers such as the webhook use it.
func (s *Service) OrderByID(ctx context.Context, orderID string) (*Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}
