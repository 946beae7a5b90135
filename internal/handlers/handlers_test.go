package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/cache"
	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/catalog"
	"boutique_back_end/internal/handlers"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/models"
	"boutique_back_end/internal/orders"
	"boutique_back_end/internal/payments"
	"boutique_back_end/internal/routes"
	"boutique_back_end/internal/store/sqlstore"
)

const webhookSecret = "whsec_handlers_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	*payments.StripeGateway
	mu       sync.Mutex
	sessions map[string]*payments.CheckoutSession
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, o *models.Order, _, _ string) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// session réglée dès sa création
	cs := &payments.CheckoutSession{ID: "cs_" + o.ID, URL: "https://checkout.test/" + o.ID, OrderID: o.ID, Paid: true}
	g.sessions[cs.ID] = cs
	return cs, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cs, ok := g.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *cs
	return &cp, nil
}

type app struct {
	router   *gin.Engine
	db       *sqlstore.Store
	accounts *accounts.Service
	gateway  *fakeGateway
}

func newApp(t *testing.T, testMode bool) *app {
	t.Helper()
	db, err := sqlstore.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw := &fakeGateway{
		StripeGateway: payments.NewStripeGateway("sk_test_dummy", webhookSecret, "eur"),
		sessions:      map[string]*payments.CheckoutSession{},
	}
	acc := accounts.NewService(db, accounts.NewTokens("secret", time.Hour), cache.NewMemoryBlacklist())
	carts := cart.NewService(db, cart.NewMemoryStore(), nil, nil)
	h := handlers.New(
		catalog.NewService(db, nil, nil),
		carts,
		orders.NewService(db, db, carts, nil, nil, nil),
		payments.NewService(db, gw, nil, nil, payments.Options{BaseURL: "http://shop.test", PublishableKey: "pk_test", TestMode: testMode}),
		acc,
	)
	r := routes.New(h, routes.Options{
		Logger:   zap.NewNop(),
		Sessions: middleware.NewCookieStore("0123456789abcdef0123456789abcdef", false),
		Auth:     acc,
	})
	return &app{router: r, db: db, accounts: acc, gateway: gw}
}

// client garde les cookies de session et le JWT entre deux requêtes.
type client struct {
	app     *app
	cookies map[string]*http.Cookie
	token   string
}

func (a *app) client() *client {
	return &client{app: a, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	w := httptest.NewRecorder()
	c.app.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (c *client) login(t *testing.T, username string) {
	t.Helper()
	code, out := c.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": "motdepasse", "password2": "motdepasse",
	})
	require.Equal(t, http.StatusCreated, code, out)
	c.token = out["token"].(string)
}

func (a *app) admin(t *testing.T) *client {
	t.Helper()
	_, err := a.accounts.CreateAdmin(context.Background(), "root", "root@example.com", "supersecret")
	require.NoError(t, err)
	c := a.client()
	code, out := c.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "root", "password": "supersecret"})
	require.Equal(t, http.StatusOK, code, out)
	c.token = out["token"].(string)
	return c
}

func (a *app) seedProduct(t *testing.T, admin *client, name, price string, stock int) string {
	t.Helper()
	code, out := admin.do(t, http.MethodPost, "/api/admin/products", map[string]any{"name": name, "price": price, "stock": stock})
	require.Equal(t, http.StatusCreated, code, out)
	return out["product"].(map[string]any)["id"].(string)
}

func messages(out map[string]any) []string {
	var texts []string
	raw, _ := out["messages"].([]any)
	for _, m := range raw {
		texts = append(texts, m.(map[string]any)["text"].(string))
	}
	return texts
}

func TestHealth(t *testing.T) {
	a := newApp(t, false)
	code, out := a.client().do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])
}

func TestCatalogEndpoints(t *testing.T) {
	a := newApp(t, false)
	admin := a.admin(t)

	code, out := admin.do(t, http.MethodPost, "/api/admin/categories", map[string]string{"name": "Thés verts"})
	require.Equal(t, http.StatusCreated, code, out)

	code, out = admin.do(t, http.MethodPost, "/api/admin/products", map[string]any{"name": "Sencha", "price": "12.50", "stock": 4, "category": "thes-verts", "description": "vert japonais"})
	require.Equal(t, http.StatusCreated, code, out)
	id := out["product"].(map[string]any)["id"].(string)

	visitor := a.client()
	code, out = visitor.do(t, http.MethodGet, "/api/products?category=thes-verts", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["products"], 1)
	assert.NotNil(t, out["messages"])

	code, _ = visitor.do(t, http.MethodGet, "/api/products?category=inconnue", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = visitor.do(t, http.MethodGet, "/api/products/"+id+"/sencha", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "12.5", out["product"].(map[string]any)["price"])

	code, _ = visitor.do(t, http.MethodGet, "/api/products/"+id+"/autre", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = visitor.do(t, http.MethodGet, "/api/search?q=JAPONAIS", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["count"])

	code, out = visitor.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["categories"], 1)

	code, out = admin.do(t, http.MethodPatch, "/api/admin/products/"+id+"/stock", map[string]any{"type": "adjustment", "quantity": -10})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["fields"], "quantity")

	code, out = admin.do(t, http.MethodPatch, "/api/admin/products/"+id+"/stock", map[string]any{"type": "restock", "quantity": 6})
	require.Equal(t, http.StatusOK, code, out)
	assert.EqualValues(t, 10, out["movement"].(map[string]any)["new_stock"])

	code, _ = admin.do(t, http.MethodPatch, "/api/admin/products/"+id+"/availability", map[string]any{"available": false})
	require.Equal(t, http.StatusOK, code)
	code, _ = visitor.do(t, http.MethodGet, "/api/products/"+id+"/sencha", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newApp(t, false)
	visitor := a.client()
	code, _ := visitor.do(t, http.MethodGet, "/api/admin/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	visitor.login(t, "ada")
	code, _ = visitor.do(t, http.MethodGet, "/api/admin/orders", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCartFlow(t *testing.T) {
	a := newApp(t, false)
	id := a.seedProduct(t, a.admin(t), "Tasse", "8.00", 3)
	shopper := a.client()

	code, out := shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.EqualValues(t, 1, out["quantity"])
	assert.Equal(t, []string{"Tasse ajouté au panier."}, messages(out))

	code, out = shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, out["quantity"])
	assert.Equal(t, true, out["clamped"])
	assert.Equal(t, []string{"Quantité limitée au stock disponible (3)."}, messages(out))

	code, out = shopper.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, code)
	detail := out["cart"].(map[string]any)
	assert.Equal(t, "24", detail["total"])
	assert.EqualValues(t, 3, detail["count"])
	assert.Empty(t, messages(out))

	other := a.client()
	_, out = other.do(t, http.MethodGet, "/api/cart", nil)
	assert.EqualValues(t, 0, out["cart"].(map[string]any)["count"])

	code, out = shopper.do(t, http.MethodPost, "/api/cart/"+id+"/update", map[string]int{"quantity": 0})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["removed"])

	code, _ = shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", map[string]int{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = shopper.do(t, http.MethodPost, "/api/cart/"+uuid.NewString()+"/add", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", []byte("{pas du json"))
	assert.Equal(t, http.StatusBadRequest, code)
}

func buyer() map[string]string {
	return map[string]string{
		"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com",
		"address": "1 rue de la Paix", "postal_code": "75002", "city": "Paris",
	}
}

func placeOrder(t *testing.T, a *app, admin, shopper *client) string {
	t.Helper()
	id := a.seedProduct(t, admin, "Bol", "15.00", 2)
	code, _ := shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, code)

	code, out := shopper.do(t, http.MethodGet, "/api/orders/new", nil)
	require.Equal(t, http.StatusOK, code, out)
	require.EqualValues(t, 2, out["cart"].(map[string]any)["count"])
	require.Contains(t, out["buyer"].(map[string]any)["email"], "@example.com")

	code, out = shopper.do(t, http.MethodPost, "/api/orders", buyer())
	require.Equal(t, http.StatusCreated, code, out)
	return out["order"].(map[string]any)["id"].(string)
}

func TestOrderFlow(t *testing.T) {
	a := newApp(t, false)
	shopper := a.client()

	code, _ := shopper.do(t, http.MethodPost, "/api/orders", buyer())
	assert.Equal(t, http.StatusUnauthorized, code)

	shopper.login(t, "ada")
	code, out := shopper.do(t, http.MethodPost, "/api/orders", buyer())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"Votre panier est vide."}, messages(out))

	code, _ = shopper.do(t, http.MethodGet, "/api/orders/new", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	orderID := placeOrder(t, a, a.admin(t), shopper)

	_, out = shopper.do(t, http.MethodGet, "/api/cart", nil)
	assert.EqualValues(t, 0, out["cart"].(map[string]any)["count"])

	code, out = shopper.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "30", out["total"])
	assert.Equal(t, "pending", out["order"].(map[string]any)["status"])

	code, out = shopper.do(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["count"])

	stranger := a.client()
	stranger.login(t, "grace")
	code, _ = stranger.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	assert.Equal(t, http.StatusNotFound, code)

	invalid := buyer()
	invalid["email"] = "nope"
	code, out = shopper.do(t, http.MethodPost, "/api/orders", invalid)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["fields"], "email")
}

func TestOrderOutOfStock(t *testing.T) {
	a := newApp(t, false)
	admin := a.admin(t)
	id := a.seedProduct(t, admin, "Théière", "40.00", 2)

	shopper := a.client()
	shopper.login(t, "ada")
	code, _ := shopper.do(t, http.MethodPost, "/api/cart/"+id+"/add", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, code)

	code, _ = admin.do(t, http.MethodPatch, "/api/admin/products/"+id+"/stock", map[string]any{"type": "adjustment", "quantity": -1})
	require.Equal(t, http.StatusOK, code)

	code, out := shopper.do(t, http.MethodPost, "/api/orders", buyer())
	assert.Equal(t, http.StatusConflict, code)
	assert.EqualValues(t, 1, out["available"])

	_, out = shopper.do(t, http.MethodGet, "/api/cart", nil)
	assert.EqualValues(t, 2, out["cart"].(map[string]any)["count"], "panier restauré")
}

func TestCheckoutAndWebhook(t *testing.T) {
	a := newApp(t, false)
	shopper := a.client()
	shopper.login(t, "ada")
	orderID := placeOrder(t, a, a.admin(t), shopper)

	code, out := shopper.do(t, http.MethodGet, "/api/payments/process/"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pk_test", out["payment"].(map[string]any)["stripe_publishable_key"])

	code, out = shopper.do(t, http.MethodPost, "/api/payments/process/"+orderID, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "https://checkout.test/"+orderID, out["redirect_url"])

	code, _ = shopper.do(t, http.MethodPost, "/api/payments/direct-success/"+orderID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27",
		"data":{"object":{"id":"cs_%s","object":"checkout.session","payment_status":"paid","client_reference_id":%q,"metadata":{"order_id":%q}}}}`,
		orderID, orderID, orderID))
	signature := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret}).Header

	post := func(sig string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", sig)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		out := map[string]any{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return w.Code, out
	}

	code, _ = post("t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, code)
	o, err := a.db.OrderByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.False(t, o.Paid)

	code, out = post(signature)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", out["outcome"])

	code, out = post(signature)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "already_paid", out["outcome"])

	o, err = a.db.OrderByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, o.Paid)
	assert.Equal(t, models.StatusProcessing, o.Status)

	code, out = shopper.do(t, http.MethodGet, "/api/payments/success?session_id=cs_"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "already_paid", out["outcome"])

	code, _ = shopper.do(t, http.MethodGet, "/api/payments/process/"+orderID, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, out = shopper.do(t, http.MethodGet, "/api/payments/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, messages(out), 1)
}

func TestDirectSuccessInTestMode(t *testing.T) {
	a := newApp(t, true)
	shopper := a.client()
	shopper.login(t, "ada")
	orderID := placeOrder(t, a, a.admin(t), shopper)

	code, out := shopper.do(t, http.MethodPost, "/api/payments/direct-success/"+orderID, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "paid", out["outcome"])
	assert.Equal(t, []string{"Paiement reçu, merci pour votre commande !"}, messages(out))

	o, err := a.db.OrderByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "direct_payment_"+orderID, o.GatewayID)

	code, out = shopper.do(t, http.MethodPost, "/api/payments/direct-success/"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "already_paid", out["outcome"])
}

func TestAdminOrderActions(t *testing.T) {
	a := newApp(t, false)
	shopper := a.client()
	shopper.login(t, "ada")
	admin := a.admin(t)
	orderID := placeOrder(t, a, admin, shopper)

	code, out := admin.do(t, http.MethodPost, "/api/admin/orders/mark-shipped", map[string]any{"ids": []string{orderID}})
	require.Equal(t, http.StatusOK, code)
	res := out["results"].([]any)[0].(map[string]any)
	assert.Equal(t, false, res["changed"])

	code, out = admin.do(t, http.MethodPost, "/api/admin/orders/mark-paid", map[string]any{"ids": []string{orderID, "inconnue"}})
	require.Equal(t, http.StatusOK, code)
	results := out["results"].([]any)
	assert.Equal(t, true, results[0].(map[string]any)["changed"])
	assert.Equal(t, "commande introuvable", results[1].(map[string]any)["error"])

	code, _ = admin.do(t, http.MethodPost, "/api/admin/orders/mark-shipped", map[string]any{"ids": []string{orderID}})
	require.Equal(t, http.StatusOK, code)

	code, _ = admin.do(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, code)

	code, out = admin.do(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status", map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "delivered", out["order"].(map[string]any)["status"])

	code, out = admin.do(t, http.MethodGet, "/api/admin/orders", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["count"])

	code, _ = admin.do(t, http.MethodPost, "/api/admin/orders/mark-paid", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthEndpoints(t *testing.T) {
	a := newApp(t, false)
	c := a.client()
	c.login(t, "ada")

	code, out := c.do(t, http.MethodGet, "/api/auth/profile", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ada", out["user"].(map[string]any)["username"])

	code, _ = c.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "ada", "password": "faux"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(t, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(t, http.MethodGet, "/api/auth/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.client().do(t, http.MethodGet, "/api/auth/myspace", nil)
	assert.Equal(t, http.StatusNotFound, code)

	dup := a.client()
	code, out = dup.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "ada", "email": "autre@example.com", "password": "motdepasse", "password2": "motdepasse",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, strings.Contains(fmt.Sprint(out["fields"]), "déjà utilisé"))
}

func TestCartWebSocketOrigin(t *testing.T) {
	a := newApp(t, false)
	srv := httptest.NewServer(a.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cart"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.test"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {srv.URL}})
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "connected", ev["type"])
}
