package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront/internal/admission"
	"github.com/JakeFAU/storefront/internal/config"
	"github.com/JakeFAU/storefront/internal/id/uuid"
	pubmemory "github.com/JakeFAU/storefront/internal/publisher/memory"
	"github.com/JakeFAU/storefront/internal/shop"
	"github.com/JakeFAU/storefront/internal/storage/memory"
)

const testAPIKey = "admin-secret"

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type failingSessions struct{}

func (failingSessions) NewSessionID() (string, error) { return "", errors.New("entropy exhausted") }

type testEnv struct {
	handler http.Handler
	catalog *memory.CatalogStore
	orders  *memory.OrderStore
	blobs   *memory.BlobStore
	pub     *pubmemory.Publisher
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	clock := fakeClock{now: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
	env := &testEnv{
		catalog: memory.NewCatalogStore(
			shop.Product{ID: "p-mug", Slug: "mug", Name: "Enamel Mug", Description: "<p>Holds coffee.</p>", PriceCents: 1450, Currency: "USD", Stock: 4},
			shop.Product{ID: "p-tote", Slug: "tote", Name: "Canvas Tote", PriceCents: 2200, Currency: "USD", Stock: 0},
		),
		orders: memory.NewOrderStore(),
		blobs:  memory.NewBlobStore(),
		pub:    pubmemory.New(),
	}
	svc := shop.NewService(shop.Deps{
		Products:  env.catalog,
		Carts:     memory.NewCartStore(),
		Orders:    env.orders,
		Blobs:     env.blobs,
		Publisher: env.pub,
		IDs:       &fakeIDGen{},
		Clock:     clock,
	}, shop.ServiceConfig{Currency: "USD", Topic: "orders"}, nil)

	cfg := config.Config{
		Server:     config.ServerConfig{RequestTimeoutSecs: 5, StaticDir: navBuildDir(t)},
		Auth:       config.AuthConfig{APIKey: testAPIKey},
		RateLimit:  admission.Config{WindowMs: 60000, Max: 50},
		Navigation: config.NavigationConfig{ScriptEnabled: true},
		Shop:       config.ShopConfig{Currency: "USD"},
	}
	deps := Deps{Shop: svc, Sessions: uuid.New(), Clock: clock}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	server, err := NewServer(deps, cfg, zap.NewNop())
	require.NoError(t, err)
	env.handler = server.Handler()
	return env
}

// navBuildDir stands in for a deployed browser build of the accelerator.
func navBuildDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wasm_exec.js"), []byte("// go wasm runtime\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "navaccel.wasm"), []byte("\x00asm"), 0o600))
	return dir
}

func (e *testEnv) do(req *http.Request, session *http.Cookie) *httptest.ResponseRecorder {
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) session(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func validCheckoutForm() url.Values {
	return url.Values{
		"email":       {"grace@example.com"},
		"name":        {"Grace Hopper"},
		"line1":       {"1 Navy Way"},
		"city":        {"Arlington"},
		"postal_code": {"22201"},
		"country":     {"us"},
	}
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env = newTestEnv(t, nil)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := env.do(req, nil)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_CatalogRendersPrefetchableLinks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	require.Contains(t, body, `<a data-prefetch href="/products/mug">`)
	require.Contains(t, body, "Enamel Mug")
	require.Contains(t, body, "USD 14.50")
	require.Contains(t, body, "Sold out")
	require.Contains(t, body, `<div class="brand"><a href="/">`)
	require.Contains(t, body, "window.storefrontNav")
	require.Contains(t, body, "/static/navaccel-loader.js")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sessionCookie, cookies[0].Name)
	require.True(t, uuid.Valid(cookies[0].Value))
	require.True(t, cookies[0].HttpOnly)
}

func TestServer_ScriptDisabledOmitsBootstrap(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config, _ *Deps) {
		c.Navigation.ScriptEnabled = false
	})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "storefrontNav")
}

func TestServer_MissingBrowserBuildOmitsBootstrap(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config, _ *Deps) {
		c.Server.StaticDir = t.TempDir()
	})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.NotContains(t, body, "storefrontNav")
	require.NotContains(t, body, "/static/wasm_exec.js")

	env = newTestEnv(t, func(c *config.Config, _ *Deps) {
		c.Server.StaticDir = ""
	})
	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, hasNavAssets(staticFiles("")), strings.Contains(rec.Body.String(), "storefrontNav"))
}

func TestServer_ServesBrowserBuildFromStaticDir(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	for _, name := range navAssets {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/static/"+name, nil), nil)
		require.Equal(t, http.StatusOK, rec.Code, name)
	}
}

func TestServer_SessionCookieIsReusedOrReplaced(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	session := env.session(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/cart", nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Result().Cookies(), "valid session keeps its cookie")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/cart", nil), &http.Cookie{Name: sessionCookie, Value: "not-a-uuid"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.NotEqual(t, "not-a-uuid", cookies[0].Value)
}

func TestServer_SessionIssueFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(_ *config.Config, d *Deps) { d.Sessions = failingSessions{} })
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ProductPage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/products/mug", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "<p>Holds coffee.</p>")
	require.Contains(t, rec.Body.String(), `name="product_id" value="p-mug"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/products/nope", nil), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/no/such/page", nil), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CartFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	session := env.session(t)

	rec := env.do(formRequest("/cart/items", url.Values{"product_id": {"p-mug"}, "quantity": {"2"}}), session)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/cart", rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/cart", nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Enamel Mug")
	require.Contains(t, rec.Body.String(), "USD 29.00")
	require.Contains(t, rec.Body.String(), "Cart (2)")

	rec = env.do(formRequest("/cart/items/p-mug/remove", nil), session)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/cart", nil), session)
	require.Contains(t, rec.Body.String(), "Your cart is empty")
}

func TestServer_AddToCartErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	session := env.session(t)

	cases := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"missing product", url.Values{"quantity": {"1"}}, http.StatusBadRequest},
		{"non numeric quantity", url.Values{"product_id": {"p-mug"}, "quantity": {"two"}}, http.StatusBadRequest},
		{"quantity out of range", url.Values{"product_id": {"p-mug"}, "quantity": {"0"}}, http.StatusBadRequest},
		{"unknown product", url.Values{"product_id": {"p-none"}}, http.StatusNotFound},
		{"sold out", url.Values{"product_id": {"p-tote"}}, http.StatusConflict},
	}
	for _, tc := range cases {
		rec := env.do(formRequest("/cart/items", tc.form), session)
		require.Equal(t, tc.status, rec.Code, tc.name)
	}
}

func TestServer_CheckoutFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	session := env.session(t)

	rec := env.do(formRequest("/checkout", validCheckoutForm()), session)
	require.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	rec = env.do(formRequest("/cart/items", url.Values{"product_id": {"p-mug"}}), session)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	bad := validCheckoutForm()
	bad.Set("email", "not-an-email")
	rec = env.do(formRequest("/checkout", bad), session)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `class="error"`)
	require.Contains(t, rec.Body.String(), `value="Grace Hopper"`, "form keeps submitted values")

	rec = env.do(formRequest("/checkout", validCheckoutForm()), session)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/account?placed="), location)

	orders, err := env.orders.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "US", orders[0].Address.Country)
	require.Len(t, env.pub.Messages(), 1)

	rec = env.do(httptest.NewRequest(http.MethodGet, location, nil), session)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Order "+orders[0].ID+" has been placed")

	other := env.session(t)
	rec = env.do(httptest.NewRequest(http.MethodGet, location, nil), other)
	require.NotContains(t, rec.Body.String(), "has been placed", "other sessions cannot see the order")
}

func TestServer_CheckoutIsRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config, _ *Deps) {
		c.RateLimit = admission.Config{WindowMs: 60000, Max: 2}
	})
	session := env.session(t)

	for i := 0; i < 2; i++ {
		rec := env.do(formRequest("/checkout", validCheckoutForm()), session)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := env.do(formRequest("/checkout", validCheckoutForm()), session)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body admission.RejectionBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, admission.RejectionMessage, body.Message)
	require.Nil(t, body.Data)

	rec = env.do(formRequest("/cart/items", url.Values{"product_id": {"p-mug"}}), session)
	require.Equal(t, http.StatusSeeOther, rec.Code, "cart has its own window")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/checkout", nil), session)
	require.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}

func TestServer_AdminRequiresAPIKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	for _, target := range []string{"/admin/", "/admin/api/orders"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, target, nil), nil)
		require.Equal(t, http.StatusForbidden, rec.Code, target)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/orders", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := env.do(req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"orders":[]}`, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/admin/?api_key="+testAPIKey, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Canvas Tote")
}

func TestServer_AdminLockedWithoutConfiguredKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.Auth.APIKey = "" })
	req := httptest.NewRequest(http.MethodGet, "/admin/api/orders", nil)
	req.Header.Set("X-API-Key", "")
	rec := env.do(req, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func adminRequest(method, target string, body []byte, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestServer_AdminCreateProduct(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(adminRequest(http.MethodPost, "/admin/api/products",
		[]byte(`{"slug":"Poster","name":"Poster","description":"<b>Bold</b><script>x()</script>","price_cents":900,"stock":3}`),
		"application/json"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created shop.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "poster", created.Slug)
	require.Equal(t, "USD", created.Currency)
	require.NotContains(t, created.Description, "<script>")

	rec = env.do(adminRequest(http.MethodPost, "/admin/api/products",
		[]byte(`{"slug":"poster","name":"Again","price_cents":1}`), "application/json"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, "/admin/api/products",
		[]byte(`{"slug":"","name":"","price_cents":-1}`), "application/json"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var verr validationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr))
	require.Contains(t, verr.Fields, "slug")
	require.Contains(t, verr.Fields, "price_cents")

	rec = env.do(adminRequest(http.MethodPost, "/admin/api/products", []byte(`{"slug":`), "application/json"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, "/admin/api/products", []byte(`{"sku":"x"}`), "application/json"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestServer_AdminUploadImage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(adminRequest(http.MethodPut, "/admin/api/products/mug/image", []byte("png-bytes"), "image/png"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p shop.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.True(t, strings.HasPrefix(p.ImageURI, "memory://media/products/p-mug/"), p.ImageURI)

	rec = env.do(adminRequest(http.MethodPut, "/admin/api/products/mug/image", []byte("<p>"), "text/html"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(adminRequest(http.MethodPut, "/admin/api/products/none/image", []byte("x"), "image/png"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AdminOrderStatus(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	session := env.session(t)
	env.do(formRequest("/cart/items", url.Values{"product_id": {"p-mug"}}), session)
	rec := env.do(formRequest("/checkout", validCheckoutForm()), session)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	orders, err := env.orders.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	target := "/admin/api/orders/" + orders[0].ID + "/status"

	rec = env.do(adminRequest(http.MethodPost, target, []byte(`{"status":"paid"}`), "application/json"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"paid"`)

	rec = env.do(adminRequest(http.MethodPost, target, []byte(`{"status":"placed"}`), "application/json"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, target, []byte(`{}`), "application/json"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(adminRequest(http.MethodPost, "/admin/api/orders/missing/status", []byte(`{"status":"paid"}`), "application/json"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	msgs := env.pub.Messages()
	require.Len(t, msgs, 2)
}

func TestServer_StaticAssetsAreEmbedded(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/navaccel-loader.js", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "navaccel.wasm")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewServer_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Deps{}, config.Config{}, nil)
	require.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	require.Equal(t, "USD 0.05", formatMoney(5, "USD"))
	require.Equal(t, "EUR 12.30", formatMoney(1230, "EUR"))
	require.Equal(t, "-GBP 1.00", formatMoney(-100, "GBP"))
}
