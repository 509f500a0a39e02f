package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/config"
	httpopenapi "github.com/fairyhunter13/storefront-client/internal/http/openapi"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Error messages returned to clients.
const (
	MsgAuthRequired       = "Authentification requise"
	MsgTokenInvalid       = "Session invalide ou expirée"
	MsgInvalidCredentials = "Email ou mot de passe incorrect"
	MsgEmailTaken         = "Cet email est déjà utilisé"
	MsgMissingFields      = "Email, nom d'utilisateur et mot de passe sont requis"
	MsgInvalidJSON        = "Requête invalide"
	MsgProductNotFound    = "Produit non trouvé"
	MsgItemNotFound       = "Article introuvable dans le panier"
	MsgInvalidQuantity    = "La quantité doit être supérieure à zéro"
	MsgInsufficientStock  = "Stock insuffisant"
	MsgShuttingDown       = "Service en cours d'arrêt"
	MsgNotFound           = "Ressource introuvable"
	MsgMethodNotAllowed   = "Méthode non autorisée"
	MsgInternal           = "Erreur interne du serveur"
)

// App carries the stub's state and handlers.
type App struct {
	Cfg     config.Config
	Catalog *Catalog
	Users   *UserStore
	Tokens  *TokenIssuer
	Carts   *CartStore
	Metrics *ServerMetrics
	closing atomic.Bool
	started time.Time
}

func NewApp(cfg config.Config, catalog *Catalog) *App {
	return &App{
		Cfg:     cfg,
		Catalog: catalog,
		Users:   NewUserStore(bcrypt.DefaultCost),
		Tokens:  NewTokenIssuer(cfg.StubJWTSecret, cfg.StubTokenTTL),
		Carts:   NewCartStore(),
		Metrics: NewServerMetrics(),
		started: time.Now(),
	}
}

// StartShutdown makes mutating endpoints answer 503.
func (a *App) StartShutdown() { a.closing.Store(true) }

func (a *App) rejectIfClosing(w http.ResponseWriter) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", MsgShuttingDown)
		return true
	}
	return false
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", MsgInvalidJSON)
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", MsgInvalidJSON)
		return false
	}
	return true
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Catalog.List())
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := a.Catalog.Get(mux.Vars(r)["id"])
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "not_found", MsgProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) registerHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	var reg model.Registration
	if !decodeJSON(w, r, &reg) {
		return
	}
	if !strings.Contains(reg.Email, "@") || strings.TrimSpace(reg.Username) == "" || reg.Password == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", MsgMissingFields)
		return
	}
	u, err := a.Users.Register(reg)
	switch {
	case errors.Is(err, ErrEmailTaken):
		WriteJSONError(w, http.StatusConflict, "email_taken", MsgEmailTaken)
		return
	case err != nil:
		obs.Logger.Error("register_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "internal", MsgInternal)
		return
	}
	obs.Logger.Info("user_registered", "user_id", u.ID, "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, model.RegisterResult{User: u})
}

func (a *App) loginHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	var creds model.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	u, err := a.Users.Authenticate(creds.Email, creds.Password)
	if err != nil {
		a.Metrics.Logins.WithLabelValues("rejected").Inc()
		WriteJSONError(w, http.StatusUnauthorized, "invalid_credentials", MsgInvalidCredentials)
		return
	}
	token, err := a.Tokens.Issue(string(u.ID))
	if err != nil {
		obs.Logger.Error("token_issue_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "internal", MsgInternal)
		return
	}
	a.Metrics.Logins.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, model.LoginResult{Token: token, User: u})
}

func (a *App) getCartHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Carts.Get(UserIDFromContext(r.Context())))
}

func (a *App) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	var req model.AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", MsgInvalidQuantity)
		return
	}
	p, ok := a.Catalog.Get(req.ProductID)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "not_found", MsgProductNotFound)
		return
	}
	it, err := a.Carts.Add(UserIDFromContext(r.Context()), p, req.Quantity)
	if errors.Is(err, ErrInsufficientStock) {
		WriteJSONError(w, http.StatusConflict, "insufficient_stock", MsgInsufficientStock)
		return
	}
	a.Metrics.CartOps.WithLabelValues("add").Inc()
	writeJSON(w, http.StatusCreated, it)
}

func (a *App) updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	var req model.UpdateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", MsgInvalidQuantity)
		return
	}
	check := func(productID string, qty int) error {
		if p, ok := a.Catalog.Get(productID); ok && !p.InStock(qty) {
			return ErrInsufficientStock
		}
		return nil
	}
	it, err := a.Carts.Update(UserIDFromContext(r.Context()), mux.Vars(r)["itemId"], req.Quantity, check)
	switch {
	case errors.Is(err, ErrItemNotFound):
		WriteJSONError(w, http.StatusNotFound, "not_found", MsgItemNotFound)
		return
	case errors.Is(err, ErrInsufficientStock):
		WriteJSONError(w, http.StatusConflict, "insufficient_stock", MsgInsufficientStock)
		return
	}
	a.Metrics.CartOps.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, it)
}

func (a *App) removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	if err := a.Carts.Remove(UserIDFromContext(r.Context()), mux.Vars(r)["itemId"]); err != nil {
		WriteJSONError(w, http.StatusNotFound, "not_found", MsgItemNotFound)
		return
	}
	a.Metrics.CartOps.WithLabelValues("remove").Inc()
	writeJSON(w, http.StatusOK, model.Ack{Message: "Article supprimé"})
}

func (a *App) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectIfClosing(w) {
		return
	}
	a.Carts.Clear(UserIDFromContext(r.Context()))
	a.Metrics.CartOps.WithLabelValues("clear").Inc()
	writeJSON(w, http.StatusOK, model.Ack{Message: "Panier vidé"})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"products":   len(a.Catalog.List()),
		"users":      a.Users.Len(),
		"uptime_sec": time.Since(a.started).Seconds(),
	})
}

func (a *App) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONError(w, http.StatusNotFound, "not_found", MsgNotFound)
}

func (a *App) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", MsgMethodNotAllowed)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}

const docsPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Storefront stub API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({ url: '/openapi.yaml', dom_id: '#swagger-ui' });
    </script>
  </body>
</html>`
