package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store/sqlstore"
)

// fakeGateway délègue la vérification des webhooks au vrai code Stripe
// et simule les sessions de paiement en mémoire.
type fakeGateway struct {
	*StripeGateway
	mu       sync.Mutex
	sessions map[string]*CheckoutSession
	failNext error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		StripeGateway: NewStripeGateway("sk_test_dummy", testWebhookSecret, "eur"),
		sessions:      map[string]*CheckoutSession{},
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, order *models.Order, successURL, _ string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return nil, &models.GatewayError{Op: "création de session", Err: err}
	}
	cs := &CheckoutSession{ID: "cs_" + order.ID, URL: "https://checkout.test/" + order.ID + "?next=" + successURL, OrderID: order.ID}
	g.sessions[cs.ID] = cs
	return cs, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cs, ok := g.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *cs
	return &cp, nil
}

func (g *fakeGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id].Paid = true
}

type recordingConfirmer struct {
	sent chan string
}

func (r *recordingConfirmer) OrderPaid(_ context.Context, o *models.Order) error {
	r.sent <- o.ID
	return nil
}

type fixture struct {
	svc       *Service
	db        *sqlstore.Store
	gateway   *fakeGateway
	confirmer *recordingConfirmer
	order     *models.Order
	product   *models.Product
}

func newFixture(t *testing.T, testMode bool) *fixture {
	t.Helper()
	db, err := sqlstore.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	// Panier {A: 3 x 10.00}, commande passée.
	p := &models.Product{ID: uuid.NewString(), Slug: "a", Name: "A", Price: decimal.RequireFromString("10.00"), Stock: 10, Available: true}
	require.NoError(t, db.CreateProduct(ctx, p))
	orderID := uuid.NewString()
	order := &models.Order{ID: orderID, UserID: "u1", Email: "ada@example.com", Status: models.StatusPending, Items: []models.OrderItem{
		{ID: uuid.NewString(), OrderID: orderID, ProductID: p.ID, ProductName: "A", Quantity: 3, Price: p.Price},
	}}
	require.NoError(t, db.PlaceOrder(ctx, order))

	gw := newFakeGateway()
	conf := &recordingConfirmer{sent: make(chan string, 4)}
	svc := NewService(db, gw, conf, nil, Options{BaseURL: "http://shop.test", PublishableKey: "pk_test", TestMode: testMode})
	return &fixture{svc: svc, db: db, gateway: gw, confirmer: conf, order: order, product: p}
}

func (f *fixture) assertStockAndItems(t *testing.T) {
	t.Helper()
	p, err := f.db.ProductByID(context.Background(), f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
	o, err := f.db.OrderByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Len(t, o.Items, 1)
}

func (f *fixture) expectConfirmations(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case id := <-f.confirmer.sent:
			assert.Equal(t, f.order.ID, id)
		case <-time.After(2 * time.Second):
			t.Fatal("confirmation non envoyée")
		}
	}
	select {
	case id := <-f.confirmer.sent:
		t.Fatalf("confirmation en trop pour %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookMarksPaidOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	payload := checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "paid")
	sig := sign(payload, testWebhookSecret)

	res, err := f.svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.True(t, res.Order.Paid)
	assert.Equal(t, models.StatusProcessing, res.Order.Status)
	assert.Equal(t, "cs_test_1", res.Order.GatewayID)

	res, err = f.svc.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPaid, res.Outcome)
	assert.True(t, res.Order.Paid)

	f.assertStockAndItems(t)
	f.expectConfirmations(t, 1)
}

func TestConcurrentWebhookDeliveries(t *testing.T) {
	f := newFixture(t, false)
	payload := checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "paid")
	sig := sign(payload, testWebhookSecret)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 5)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.HandleWebhook(context.Background(), payload, sig)
			if assert.NoError(t, err) {
				outcomes[i] = res.Outcome
			}
		}(i)
	}
	wg.Wait()

	paid := 0
	for _, o := range outcomes {
		if o == OutcomePaid {
			paid++
		} else {
			assert.Equal(t, OutcomeAlreadyPaid, o)
		}
	}
	assert.Equal(t, 1, paid)
	f.expectConfirmations(t, 1)
}

func TestWebhookInvalidSignatureChangesNothing(t *testing.T) {
	f := newFixture(t, false)
	payload := checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "paid")

	_, err := f.svc.HandleWebhook(context.Background(), payload, sign(payload, "whsec_forged"))
	require.ErrorIs(t, err, models.ErrSignatureVerification)

	o, err := f.db.OrderByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.False(t, o.Paid)
	assert.Equal(t, models.StatusPending, o.Status)
}

func TestWebhookAcknowledgesOtherCases(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cases := []struct {
		name    string
		payload []byte
		want    Outcome
	}{
		{"autre type", checkoutEventPayload("checkout.session.expired", f.order.ID, "unpaid"), OutcomeIgnored},
		{"non payé", checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "unpaid"), OutcomeNotPaid},
		{"commande inconnue", checkoutEventPayload(EventCheckoutCompleted, uuid.NewString(), "paid"), OutcomeOrderMissing},
		{"sans commande", checkoutEventPayload(EventCheckoutCompleted, "", "paid"), OutcomeIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.HandleWebhook(ctx, tc.payload, sign(tc.payload, testWebhookSecret))
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Outcome)
		})
	}

	o, _ := f.db.OrderByID(ctx, f.order.ID)
	assert.False(t, o.Paid)
}

func TestAsyncPaymentSucceeded(t *testing.T) {
	f := newFixture(t, false)
	payload := checkoutEventPayload(EventCheckoutAsyncSucceeded, f.order.ID, "paid")

	res, err := f.svc.HandleWebhook(context.Background(), payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
}

func TestWebhookOnCancelledOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.db.UpdateStatus(ctx, f.order.ID, models.StatusPending, models.StatusCancelled))
	payload := checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "paid")

	res, err := f.svc.HandleWebhook(ctx, payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.False(t, res.Order.Paid)
}

func TestProcessAndRedirectConfirmation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, "intrus", f.order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	checkout, err := f.svc.Process(ctx, "u1", f.order.ID)
	require.NoError(t, err)
	assert.Contains(t, checkout.URL, "session_id={CHECKOUT_SESSION_ID}")

	o, _ := f.db.OrderByID(ctx, f.order.ID)
	assert.Equal(t, checkout.SessionID, o.GatewayID)

	res, err := f.svc.ConfirmCheckout(ctx, checkout.SessionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotPaid, res.Outcome)

	f.gateway.pay(checkout.SessionID)
	res, err = f.svc.ConfirmCheckout(ctx, checkout.SessionID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)

	// Le webhook arrive après la redirection : aucune seconde transition.
	payload := checkoutEventPayload(EventCheckoutCompleted, f.order.ID, "paid")
	res, err = f.svc.HandleWebhook(ctx, payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPaid, res.Outcome)

	_, err = f.svc.Process(ctx, "u1", f.order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	f.assertStockAndItems(t)
	f.expectConfirmations(t, 1)
}

func TestConfirmCheckoutErrors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.ConfirmCheckout(ctx, "")
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = f.svc.ConfirmCheckout(ctx, "cs_absent")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestProcessGatewayFailure(t *testing.T) {
	f := newFixture(t, false)
	f.gateway.failNext = errors.New("api indisponible")

	_, err := f.svc.Process(context.Background(), "u1", f.order.ID)
	require.ErrorIs(t, err, models.ErrGateway)

	o, _ := f.db.OrderByID(context.Background(), f.order.ID)
	assert.Empty(t, o.GatewayID)
}

func TestConfirmDirect(t *testing.T) {
	disabled := newFixture(t, false)
	_, err := disabled.svc.ConfirmDirect(context.Background(), "u1", disabled.order.ID)
	require.ErrorIs(t, err, models.ErrDirectPaymentDisabled)

	f := newFixture(t, true)
	ctx := context.Background()
	_, err = f.svc.ConfirmDirect(ctx, "intrus", f.order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	res, err := f.svc.ConfirmDirect(ctx, "u1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, "direct_payment_"+f.order.ID, res.Order.GatewayID)

	res, err = f.svc.ConfirmDirect(ctx, "u1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPaid, res.Outcome)

	f.assertStockAndItems(t)
	f.expectConfirmations(t, 1)
}

func TestPaymentPage(t *testing.T) {
	f := newFixture(t, true)
	page, err := f.svc.PaymentPage(context.Background(), "u1", f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pk_test", page.PublishableKey)
	assert.True(t, page.TestMode)
	assert.True(t, page.Order.Total().Equal(decimal.RequireFromString("30")))
}
