package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/memory"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConfirmFinalizesOrder(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 2)
	res := f.checkoutPaid(t, user)

	o, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 8, f.stock(t, x))
	assert.Zero(t, f.cartSize(t, user))

	assert.Equal(t, []string{orders.TopicCheckoutCreated, orders.TopicOrderPaid}, f.pub.topics())
	assert.Equal(t, []string{res.Order.ID}, f.cache.ids)
	assert.Equal(t, 1, f.logs.FilterMessage("order_finalized").Len())
}

func TestConfirmTwiceDecrementsOnce(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 2)
	res := f.checkoutPaid(t, user)

	first, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
	second, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPaid, first.Status)
	assert.Equal(t, orders.StatusPaid, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, 8, f.stock(t, x))
	assert.Equal(t, 1, f.proc.retrieveCalls(), "paid short-circuit skips the processor")
}

// A late succeeded webhook after the client already confirmed.
func TestWebhookAfterConfirmIsNoop(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 2)
	res := f.checkoutPaid(t, user)

	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)

	// Something lands in the cart again; a replayed webhook must not clear it.
	f.addToCart(t, user, x, 1)

	o, err := f.svc.HandlePaymentSucceeded(context.Background(), res.Order.ID, user, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 8, f.stock(t, x))
	assert.Equal(t, 1, f.cartSize(t, user))
	assert.Len(t, f.pub.topics(), 2)
}

func TestWebhookWithoutConfirmFinalizes(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)

	o, err := f.svc.HandlePaymentSucceeded(context.Background(), res.Order.ID, user, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 9, f.stock(t, x))
}

func TestConfirmReferenceMismatch(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 2)
	res := f.checkoutPaid(t, user)

	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, "pi_someone_else")
	assert.ErrorIs(t, err, orders.ErrReferenceMismatch)
	assert.Equal(t, orders.KindSecurity, orders.KindOf(err))
	assert.Zero(t, f.proc.retrieveCalls())
	assertUntouched(t, f, res.Order.ID, user, x, 10)
	assert.Equal(t, 1, f.logs.FilterMessage("payment_reference_mismatch").Len())
}

func TestConfirmWithoutStoredReference(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	require.NoError(t, f.store.CreateOrder(context.Background(), &orders.Order{
		ID: "o-no-ref", UserID: user, Status: orders.StatusRequiresPayment, TotalCents: 5000, Currency: "mxn",
		Items: []orders.LineItem{{ProductID: x, Name: "X", UnitPriceCents: 5000, Quantity: 1}},
	}))

	_, err := f.svc.Confirm(context.Background(), user, "o-no-ref", "")
	assert.ErrorIs(t, err, orders.ErrReferenceMismatch)
}

func TestConfirmPaymentMismatch(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*payments.Intent)
		field  string
	}{
		{"amount", func(in *payments.Intent) { in.AmountCents = 9999 }, "amount"},
		{"currency", func(in *payments.Intent) { in.Currency = "usd" }, "currency"},
		{"order metadata", func(in *payments.Intent) { in.Metadata[payments.MetaOrderID] = uuid.NewString() }, "metadata.orderId"},
		{"user metadata", func(in *payments.Intent) { in.Metadata[payments.MetaUserID] = uuid.NewString() }, "metadata.userId"},
		{"missing metadata", func(in *payments.Intent) { in.Metadata = map[string]string{} }, "metadata.orderId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			user := uuid.NewString()
			x := f.product("X", 10, 5000)
			f.addToCart(t, user, x, 2)
			res := f.checkoutPaid(t, user)
			f.proc.update(res.Order.PaymentRef, tc.mutate)

			_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
			var pm *orders.PaymentMismatchError
			require.True(t, errors.As(err, &pm), "got %v", err)
			assert.Equal(t, tc.field, pm.Field)
			assert.ErrorIs(t, err, orders.ErrPaymentMismatch)
			assertUntouched(t, f, res.Order.ID, user, x, 10)
		})
	}
}

func TestConfirmCurrencyIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)
	f.proc.update(res.Order.PaymentRef, func(in *payments.Intent) { in.Currency = "MXN" })

	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
}

func TestConfirmPaymentNotCompleted(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 2)
	res, err := f.svc.Checkout(context.Background(), user, orders.CheckoutOptions{})
	require.NoError(t, err)
	f.proc.update(res.Order.PaymentRef, func(in *payments.Intent) { in.Status = "requires_action" })

	_, err = f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	var pnc *orders.PaymentNotCompletedError
	require.True(t, errors.As(err, &pnc))
	assert.Equal(t, "requires_action", pnc.Status)
	assertUntouched(t, f, res.Order.ID, user, x, 10)
}

func TestConfirmOtherUsersOrder(t *testing.T) {
	f := newFixture(t)
	owner := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, owner, x, 1)
	res := f.checkoutPaid(t, owner)

	_, err := f.svc.Confirm(context.Background(), uuid.NewString(), res.Order.ID, res.Order.PaymentRef)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assertUntouched(t, f, res.Order.ID, owner, x, 10)
}

func TestConfirmProcessorTimeoutMutatesNothing(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)

	proc := &mockProcessor{}
	proc.On("RetrievePaymentIntent", mock.Anything, res.Order.PaymentRef).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, payments.ErrUnavailable).Once()
	f.svc.Payments = proc
	f.svc.PaymentTimeout = 20 * time.Millisecond

	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	assert.ErrorIs(t, err, orders.ErrPaymentProvider)
	assertUntouched(t, f, res.Order.ID, user, x, 10)
	proc.AssertExpectations(t)
}

// failingStore fails the Nth stock decrement inside the unit.
type failingStore struct {
	orders.Store
	failAt int
}

type failingTx struct {
	orders.Tx
	calls  int
	failAt int
}

var errInjected = errors.New("injected failure")

func (s *failingStore) WithinTx(ctx context.Context, fn func(context.Context, orders.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failAt: s.failAt})
	})
}

func (t *failingTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	t.calls++
	if t.calls == t.failAt {
		return false, errInjected
	}
	return t.Tx.DecrementStock(ctx, productID, qty)
}

func TestNoPartialApplyOnMidUnitFailure(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	a := f.product("A", 10, 1000)
	b := f.product("B", 10, 2000)
	f.addToCart(t, user, a, 1)
	f.addToCart(t, user, b, 1)
	res := f.checkoutPaid(t, user)

	f.svc.Store = &failingStore{Store: f.store, failAt: 2}
	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, 10, f.stock(t, a))
	assert.Equal(t, 10, f.stock(t, b))
	assert.Equal(t, 2, f.cartSize(t, user))
	assert.Equal(t, orders.StatusRequiresPayment, f.order(t, res.Order.ID).Status)

	// A clean retry succeeds once storage behaves.
	f.svc.Store = f.store
	o, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 9, f.stock(t, a))
	assert.Equal(t, 9, f.stock(t, b))
}

func TestAtomicityUnavailable(t *testing.T) {
	f := newFixture(t, memory.WithoutTransactions())
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)

	_, err := f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
	assert.ErrorIs(t, err, orders.ErrAtomicityUnavailable)
	assert.Equal(t, orders.KindFatal, orders.KindOf(err))
	assert.Equal(t, "ATOMICITY_UNAVAILABLE", orders.CodeOf(err))
	assertUntouched(t, f, res.Order.ID, user, x, 10)
	assert.Equal(t, 1, f.logs.FilterMessage("atomic_finalization_unavailable").Len())
}

// Two users race for the last unit.
func TestConcurrentConfirmLastUnit(t *testing.T) {
	f := newFixture(t)
	y := f.product("Y", 1, 5000)
	users := []string{uuid.NewString(), uuid.NewString()}
	results := make([]*orders.CheckoutResult, len(users))
	for i, u := range users {
		f.addToCart(t, u, y, 1)
		results[i] = f.checkoutPaid(t, u)
	}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Confirm(context.Background(), users[i], results[i].Order.ID, results[i].Order.PaymentRef)
		}(i)
	}
	close(start)
	wg.Wait()

	var paid, lost int
	for i, err := range errs {
		switch {
		case err == nil:
			paid++
			assert.Equal(t, orders.StatusPaid, f.order(t, results[i].Order.ID).Status)
		case errors.Is(err, orders.ErrStockRaceLost):
			lost++
			assert.Equal(t, orders.StatusRequiresPayment, f.order(t, results[i].Order.ID).Status)
			assert.Equal(t, 1, f.cartSize(t, users[i]))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, f.stock(t, y))
}

// Confirm and webhook deliveries for one order converge on one finalization.
func TestConfirmAndWebhookRace(t *testing.T) {
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 3)
	res := f.checkoutPaid(t, user)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.svc.Confirm(context.Background(), user, res.Order.ID, res.Order.PaymentRef)
			} else {
				_, errs[i] = f.svc.HandlePaymentSucceeded(context.Background(), res.Order.ID, user, res.Order.PaymentRef)
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 7, f.stock(t, x))
	assert.Equal(t, orders.StatusPaid, f.order(t, res.Order.ID).Status)

	var paidEvents int
	for _, topic := range f.pub.topics() {
		if topic == orders.TopicOrderPaid {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestPaymentFailedAndCanceled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)

	res, err := f.svc.Checkout(ctx, user, orders.CheckoutOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandlePaymentFailed(ctx, res.Order.ID))
	assert.Equal(t, orders.StatusFailed, f.order(t, res.Order.ID).Status)
	require.NoError(t, f.svc.HandlePaymentFailed(ctx, res.Order.ID), "repeat is a no-op")

	// The customer retries with another card on the same intent.
	f.proc.succeed(res.Order.PaymentRef)
	o, err := f.svc.Confirm(ctx, user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)

	// Late failure and cancel notifications never regress a paid order.
	require.NoError(t, f.svc.HandlePaymentFailed(ctx, res.Order.ID))
	require.NoError(t, f.svc.HandlePaymentCanceled(ctx, res.Order.ID))
	assert.Equal(t, orders.StatusPaid, f.order(t, res.Order.ID).Status)
	assert.Equal(t, 9, f.stock(t, x))

	assert.Equal(t, []string{orders.TopicCheckoutCreated, orders.TopicPaymentFailed, orders.TopicOrderPaid}, f.pub.topics())
}

func TestCanceledOrderIsPaidWhenProcessorSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)

	require.NoError(t, f.svc.HandlePaymentCanceled(ctx, res.Order.ID))
	assert.Equal(t, orders.StatusCanceled, f.order(t, res.Order.ID).Status)

	o, err := f.svc.Confirm(ctx, user, res.Order.ID, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 9, f.stock(t, x))
	assert.Equal(t, 0, f.cartSize(t, user))
}

func TestLateNotificationsAfterCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)
	f.addToCart(t, user, x, 1)
	res := f.checkoutPaid(t, user)

	require.NoError(t, f.svc.HandlePaymentCanceled(ctx, res.Order.ID))
	require.NoError(t, f.svc.HandlePaymentFailed(ctx, res.Order.ID))
	assert.Equal(t, orders.StatusFailed, f.order(t, res.Order.ID).Status)

	o, err := f.svc.HandlePaymentSucceeded(ctx, res.Order.ID, user, res.Order.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, 9, f.stock(t, x))

	require.NoError(t, f.svc.HandlePaymentCanceled(ctx, res.Order.ID))
	assert.Equal(t, orders.StatusPaid, f.order(t, res.Order.ID).Status)
	assert.Equal(t, []string{
		orders.TopicCheckoutCreated, orders.TopicOrderCanceled, orders.TopicPaymentFailed, orders.TopicOrderPaid,
	}, f.pub.topics())
}

func TestFailedUnknownOrderIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.HandlePaymentFailed(context.Background(), uuid.NewString()))
	assert.NoError(t, f.svc.HandlePaymentCanceled(context.Background(), uuid.NewString()))
	assert.Empty(t, f.pub.topics())
}

func TestListAndGetOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := uuid.NewString()
	x := f.product("X", 10, 5000)

	var ids []string
	for i := 0; i < 3; i++ {
		f.addToCart(t, user, x, 1)
		res, err := f.svc.Checkout(ctx, user, orders.CheckoutOptions{})
		require.NoError(t, err)
		ids = append(ids, res.Order.ID)
		require.NoError(t, f.store.ClearCart(ctx, user))
	}

	list, err := f.svc.ListOrders(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)
	assert.Len(t, list[0].Items, 1)

	o, err := f.svc.GetOrder(ctx, user, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], o.ID)

	_, err = f.svc.GetOrder(ctx, uuid.NewString(), ids[1])
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	other, err := f.svc.ListOrders(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func assertUntouched(t *testing.T, f *fixture, orderID, userID, productID string, stock int) {
	t.Helper()
	assert.Equal(t, orders.StatusRequiresPayment, f.order(t, orderID).Status)
	assert.Equal(t, stock, f.stock(t, productID))
	assert.NotZero(t, f.cartSize(t, userID))
	for _, topic := range f.pub.topics() {
		assert.NotEqual(t, orders.TopicOrderPaid, topic)
	}
}
