// Package httpapi is a development stub of the storefront HTTP API: catalog,
// account registration and login, and per-user carts behind bearer tokens.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// jsonError is the error body. Clients display Message as is.
type jsonError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSONError writes an error body with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, jsonError{Message: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
