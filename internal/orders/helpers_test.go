package orders_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/memory"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeProcessor keeps intents in memory like a sandbox account would.
type fakeProcessor struct {
	mu       sync.Mutex
	seq      int
	intents  map[string]*payments.Intent
	created  []payments.CreateIntentParams
	retrieve int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{intents: make(map[string]*payments.Intent)}
}

func (f *fakeProcessor) CreatePaymentIntent(ctx context.Context, p payments.CreateIntentParams) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("pi_test_%d", f.seq)
	md := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		md[k] = v
	}
	in := &payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Metadata:     md,
	}
	f.intents[id] = in
	f.created = append(f.created, p)
	cp := *in
	return &cp, nil
}

func (f *fakeProcessor) RetrievePaymentIntent(ctx context.Context, ref string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieve++
	in, ok := f.intents[ref]
	if !ok {
		return nil, fmt.Errorf("%w: no such payment_intent %s", payments.ErrRejected, ref)
	}
	cp := *in
	cp.Metadata = make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, nil
}

func (f *fakeProcessor) succeed(ref string) {
	f.update(ref, func(in *payments.Intent) { in.Status = payments.IntentSucceeded })
}

func (f *fakeProcessor) update(ref string, fn func(*payments.Intent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.intents[ref])
}

func (f *fakeProcessor) retrieveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieve
}

// mockProcessor is used where a case needs a scripted processor response.
type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) CreatePaymentIntent(ctx context.Context, p payments.CreateIntentParams) (*payments.Intent, error) {
	args := m.Called(ctx, p)
	in, _ := args.Get(0).(*payments.Intent)
	return in, args.Error(1)
}

func (m *mockProcessor) RetrievePaymentIntent(ctx context.Context, ref string) (*payments.Intent, error) {
	args := m.Called(ctx, ref)
	in, _ := args.Get(0).(*payments.Intent)
	return in, args.Error(1)
}

type published struct {
	topic string
	key   string
	env   orders.Envelope
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) bool {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), env: env})
	return true
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

type recordingCache struct {
	mu  sync.Mutex
	ids []string
}

func (c *recordingCache) Invalidate(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, orderID)
	return nil
}

type fixture struct {
	store *memory.Store
	proc  *fakeProcessor
	pub   *recordingPublisher
	cache *recordingCache
	logs  *observer.ObservedLogs
	svc   *orders.Service
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		store: memory.New(opts...),
		proc:  newFakeProcessor(),
		pub:   &recordingPublisher{},
		cache: &recordingCache{},
		logs:  logs,
	}
	f.svc = &orders.Service{
		Store:          f.store,
		Payments:       f.proc,
		Currency:       "mxn",
		PaymentTimeout: time.Second,
		Publisher:      f.pub,
		Cache:          f.cache,
		Producer:       "checkout-test",
		Logger:         zap.New(core),
	}
	return f
}

func cents(v int64) *int64 { return &v }

func (f *fixture) product(name string, stock int, priceCents int64) string {
	id := uuid.NewString()
	f.store.PutProduct(orders.Product{ID: id, Name: name, Stock: stock, PriceCents: cents(priceCents)})
	return id
}

func (f *fixture) addToCart(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	require.NoError(t, f.store.SetCartQuantity(context.Background(), userID, productID, qty))
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) cartSize(t *testing.T, userID string) int {
	t.Helper()
	lines, err := f.store.CartWithProducts(context.Background(), userID)
	require.NoError(t, err)
	return len(lines)
}

func (f *fixture) order(t *testing.T, orderID string) *orders.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

// checkoutPaid runs checkout and marks the intent succeeded at the processor.
func (f *fixture) checkoutPaid(t *testing.T, userID string) *orders.CheckoutResult {
	t.Helper()
	res, err := f.svc.Checkout(context.Background(), userID, orders.CheckoutOptions{})
	require.NoError(t, err)
	f.proc.succeed(res.Order.PaymentRef)
	return res
}
