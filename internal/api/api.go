// Package api is the typed facade over the storefront HTTP API: products,
// authentication and the remote cart. Every failure it returns is an
// *apierr.Error whose message can be shown to the end user as is.
package api

import (
	"context"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/model"
)

// Fallback display messages, used when the backend supplies none.
const (
	MsgProductsLoad    = "Erreur lors du chargement des produits"
	MsgProductLoad     = "Erreur lors du chargement du produit"
	MsgProductNotFound = "Produit non trouvé"
	MsgLogin           = "Erreur lors de la connexion"
	MsgRegister        = "Erreur lors de l'inscription"
	MsgCartLoad        = "Erreur lors du chargement du panier"
	MsgCartAdd         = "Erreur lors de l'ajout au panier"
	MsgCartUpdate      = "Erreur lors de la mise à jour"
	MsgCartRemove      = "Erreur lors de la suppression"
	MsgCartClear       = "Erreur lors du vidage du panier"
)

// Doer sends one JSON request; *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// SessionStore is the session persistence the Auth service needs;
// *session.Store implements it.
type SessionStore interface {
	Save(ctx context.Context, token string, user model.User) error
	Clear(ctx context.Context) error
	HasToken(ctx context.Context) bool
	LoadUser(ctx context.Context) (*model.User, error)
}

// Services groups the three facades over one transport.
type Services struct {
	Products *Products
	Auth     *Auth
	Cart     *Cart
}

// New wires the facades.
func New(c Doer, sess SessionStore) *Services {
	return &Services{
		Products: NewProducts(c),
		Auth:     NewAuth(c, sess),
		Cart:     NewCart(c),
	}
}

// translate flattens a transport failure into a single display message. The
// backend's own message wins; fallback is used otherwise. Network and auth
// kinds are preserved; a 404 outside a singular lookup is a service error.
func translate(err error, fallback string) error {
	if err == nil {
		return nil
	}
	e, ok := apierr.As(err)
	if !ok {
		return &apierr.Error{Kind: apierr.KindService, Message: fallback, Err: err}
	}
	msg := e.Detail
	if msg == "" {
		msg = fallback
	}
	kind := e.Kind
	if kind == apierr.KindNotFound {
		kind = apierr.KindService
	}
	return &apierr.Error{Kind: kind, Status: e.Status, Message: msg, Detail: e.Detail, Err: err}
}
