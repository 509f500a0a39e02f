package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/config"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func setupApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	app := NewApp(config.Defaults(), cat)
	app.Users = NewUserStore(bcrypt.MinCost)
	return app, NewRouter(app)
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e jsonError
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body decode: %v (%s)", err, rr.Body.String())
	}
	return e.Message
}

// login registers a fresh account and returns its token.
func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	reg := model.Registration{Email: email, Username: "user", Password: "secret"}
	if rr := do(t, h, http.MethodPost, "/auth/register", "", reg); rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	rr := do(t, h, http.MethodPost, "/auth/login", "", model.Credentials{Email: email, Password: "secret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res model.LoginResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("login decode: %v", err)
	}
	if res.Token == "" || res.User.Email != email {
		t.Fatalf("unexpected login result %+v", res)
	}
	return res.Token
}

func TestOpenAPIServed(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/openapi.yaml", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("openapi:")) {
		t.Fatalf("expected openapi content")
	}
}

func TestDocsServed(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/docs", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "swagger-ui") {
		t.Fatalf("expected swagger-ui page, got %d", rr.Code)
	}
}

func TestHealthzOK(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("healthz decode: %v", err)
	}
	if m["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", m["status"])
	}
}

func TestRequestIDEchoed(t *testing.T) {
	_, h := setupApp(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "rid-1" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	rr = do(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMetricsExposed(t *testing.T) {
	_, h := setupApp(t)
	do(t, h, http.MethodGet, "/products", "", nil)
	rr := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `storefront_stub_http_requests_total{method="GET",route="/products",status="200"} 1`) {
		t.Fatalf("missing request counter in:\n%s", body)
	}
}

func TestListProducts(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/products", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var ps []model.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &ps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ps) != 5 || ps[0].ID != "1" {
		t.Fatalf("unexpected catalog %+v", ps)
	}
	if ps[0].Price.String() != "12.5" {
		t.Fatalf("unexpected price %s", ps[0].Price)
	}
}

func TestGetProduct(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/products/2", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/products/999", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != MsgProductNotFound {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	_, h := setupApp(t)
	if rr := do(t, h, http.MethodGet, "/nope", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/products", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodPost, "/auth/register", "", model.Registration{Email: "bad", Username: "u", Password: "p"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != MsgMissingFields {
		t.Fatalf("unexpected message %q", msg)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.c","extra":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	_, h := setupApp(t)
	login(t, h, "dup@example.com")
	rr := do(t, h, http.MethodPost, "/auth/register", "", model.Registration{Email: "DUP@example.com", Username: "x", Password: "y"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != MsgEmailTaken {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestLoginRejected(t *testing.T) {
	_, h := setupApp(t)
	login(t, h, "a@example.com")
	rr := do(t, h, http.MethodPost, "/auth/login", "", model.Credentials{Email: "a@example.com", Password: "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != MsgInvalidCredentials {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestCartRequiresToken(t *testing.T) {
	_, h := setupApp(t)
	rr := do(t, h, http.MethodGet, "/cart", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/cart", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != MsgTokenInvalid {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestCartFlow(t *testing.T) {
	_, h := setupApp(t)
	tok := login(t, h, "cart@example.com")

	rr := do(t, h, http.MethodPost, "/cart/items", tok, model.AddItemRequest{ProductID: "1", Quantity: 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var first model.RemoteCartItem
	_ = json.Unmarshal(rr.Body.Bytes(), &first)
	if first.ID == "" || first.Quantity != 2 || first.Product == nil {
		t.Fatalf("unexpected line %+v", first)
	}

	rr = do(t, h, http.MethodPost, "/cart/items", tok, model.AddItemRequest{ProductID: "1", Quantity: 1})
	var merged model.RemoteCartItem
	_ = json.Unmarshal(rr.Body.Bytes(), &merged)
	if merged.ID != first.ID || merged.Quantity != 3 {
		t.Fatalf("expected merge into %s with qty 3, got %+v", first.ID, merged)
	}

	rr = do(t, h, http.MethodPut, "/cart/items/"+first.ID.String(), tok, model.UpdateItemRequest{Quantity: 5})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/cart", tok, nil)
	var cart model.RemoteCart
	if err := json.Unmarshal(rr.Body.Bytes(), &cart); err != nil {
		t.Fatalf("cart decode: %v", err)
	}
	if it, ok := cart.ItemFor("1"); !ok || it.Quantity != 5 {
		t.Fatalf("unexpected cart %+v", cart)
	}

	if rr = do(t, h, http.MethodDelete, "/cart/items/"+first.ID.String(), tok, nil); rr.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", rr.Code)
	}
	if rr = do(t, h, http.MethodDelete, "/cart/items/"+first.ID.String(), tok, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second remove: expected 404, got %d", rr.Code)
	}

	do(t, h, http.MethodPost, "/cart/items", tok, model.AddItemRequest{ProductID: "3", Quantity: 1})
	if rr = do(t, h, http.MethodDelete, "/cart", tok, nil); rr.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/cart", tok, nil)
	_ = json.Unmarshal(rr.Body.Bytes(), &cart)
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestCartsArePerUser(t *testing.T) {
	_, h := setupApp(t)
	alice := login(t, h, "alice@example.com")
	bob := login(t, h, "bob@example.com")
	do(t, h, http.MethodPost, "/cart/items", alice, model.AddItemRequest{ProductID: "1", Quantity: 1})

	rr := do(t, h, http.MethodGet, "/cart", bob, nil)
	var cart model.RemoteCart
	_ = json.Unmarshal(rr.Body.Bytes(), &cart)
	if len(cart.Items) != 0 {
		t.Fatalf("bob sees alice's cart: %+v", cart.Items)
	}
}

func TestCartValidation(t *testing.T) {
	_, h := setupApp(t)
	tok := login(t, h, "v@example.com")
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		msg    string
	}{
		{"zero qty", http.MethodPost, "/cart/items", model.AddItemRequest{ProductID: "1", Quantity: 0}, http.StatusBadRequest, MsgInvalidQuantity},
		{"unknown product", http.MethodPost, "/cart/items", model.AddItemRequest{ProductID: "999", Quantity: 1}, http.StatusNotFound, MsgProductNotFound},
		{"out of stock", http.MethodPost, "/cart/items", model.AddItemRequest{ProductID: "5", Quantity: 1}, http.StatusConflict, MsgInsufficientStock},
		{"over stock", http.MethodPost, "/cart/items", model.AddItemRequest{ProductID: "4", Quantity: 4}, http.StatusConflict, MsgInsufficientStock},
		{"unknown item", http.MethodPut, "/cart/items/missing", model.UpdateItemRequest{Quantity: 1}, http.StatusNotFound, MsgItemNotFound},
		{"negative update", http.MethodPut, "/cart/items/missing", model.UpdateItemRequest{Quantity: -1}, http.StatusBadRequest, MsgInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.path, tok, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if msg := errorMessage(t, rr); msg != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, msg)
			}
		})
	}
}

func TestShutdownRejectsMutations(t *testing.T) {
	app, h := setupApp(t)
	tok := login(t, h, "s@example.com")
	app.StartShutdown()
	rr := do(t, h, http.MethodPost, "/cart/items", tok, model.AddItemRequest{ProductID: "1", Quantity: 1})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr = do(t, h, http.MethodGet, "/products", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads should still work, got %d", rr.Code)
	}
}

func TestTokenIssuer(t *testing.T) {
	ti := NewTokenIssuer("k1", time.Minute)
	tok, err := ti.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sub, err := ti.Parse(tok); err != nil || sub != "u1" {
		t.Fatalf("parse: sub=%q err=%v", sub, err)
	}
	if _, err := NewTokenIssuer("k2", time.Minute).Parse(tok); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	expired := NewTokenIssuer("k1", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := expired.Parse(tok); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"yaml":      "products: [",
		"no id":     "products:\n  - name: x\n    price: \"1\"\n",
		"negative":  "products:\n  - id: a\n    price: \"-1\"\n",
		"duplicate": "products:\n  - id: a\n    price: \"1\"\n  - id: a\n    price: \"2\"\n",
		"stock":     "products:\n  - id: a\n    price: \"1\"\n    stock: -2\n",
	}
	for name, doc := range cases {
		if _, err := ParseCatalog([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
