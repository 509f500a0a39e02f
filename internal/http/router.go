package httpapi

import (
	"expvar"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the stub's routes and returns the handler with
// middleware applied.
func NewRouter(app *App) http.Handler {
	r := mux.NewRouter()
	logging := WithLogging(app.Metrics)
	r.Use(logging)
	r.NotFoundHandler = logging(http.HandlerFunc(app.notFoundHandler))
	r.MethodNotAllowedHandler = logging(http.HandlerFunc(app.methodNotAllowedHandler))

	r.HandleFunc("/products", app.listProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", app.getProductHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", app.registerHandler).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", app.loginHandler).Methods(http.MethodPost)

	cart := r.PathPrefix("/cart").Subrouter()
	cart.Use(RequireAuth(app.Tokens))
	cart.HandleFunc("", app.getCartHandler).Methods(http.MethodGet)
	cart.HandleFunc("", app.clearCartHandler).Methods(http.MethodDelete)
	cart.HandleFunc("/items", app.addCartItemHandler).Methods(http.MethodPost)
	cart.HandleFunc("/items/{itemId}", app.updateCartItemHandler).Methods(http.MethodPut)
	cart.HandleFunc("/items/{itemId}", app.removeCartItemHandler).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", app.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", app.Metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", app.openapiHandler).Methods(http.MethodGet)
	r.HandleFunc("/docs", app.docsHandler).Methods(http.MethodGet)
	return WithRequestID(r)
}
