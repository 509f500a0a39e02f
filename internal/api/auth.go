package api

import (
	"context"
	"net/http"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/fairyhunter13/storefront-client/internal/transport"
	"github.com/go-faster/errors"
)

// Auth logs users in and out and answers session questions from the local
// session store.
type Auth struct {
	c    Doer
	sess SessionStore
}

func NewAuth(c Doer, sess SessionStore) *Auth { return &Auth{c: c, sess: sess} }

// Login exchanges credentials for a token and persists the session. A
// rejected attempt leaves any existing session in place.
func (a *Auth) Login(ctx context.Context, creds model.Credentials) (model.LoginResult, error) {
	var out model.LoginResult
	if err := a.c.Do(transport.WithCredentials(ctx), http.MethodPost, "/auth/login", creds, &out); err != nil {
		return model.LoginResult{}, rejected(err, MsgLogin)
	}
	if out.Token == "" {
		return model.LoginResult{}, &apierr.Error{
			Kind:    apierr.KindService,
			Message: MsgLogin,
			Err:     errors.New("login response has no token"),
		}
	}
	if err := a.sess.Save(ctx, out.Token, out.User); err != nil {
		return model.LoginResult{}, &apierr.Error{Kind: apierr.KindService, Message: MsgLogin, Err: err}
	}
	obs.Logger.Info("login_succeeded", "user_id", out.User.ID)
	return out, nil
}

// Register creates an account. It does not log the user in: the caller must
// call Login afterwards.
func (a *Auth) Register(ctx context.Context, reg model.Registration) (model.RegisterResult, error) {
	var out model.RegisterResult
	if err := a.c.Do(transport.WithCredentials(ctx), http.MethodPost, "/auth/register", reg, &out); err != nil {
		return model.RegisterResult{}, rejected(err, MsgRegister)
	}
	return out, nil
}

// Logout clears the local session. No request is sent.
func (a *Auth) Logout(ctx context.Context) error {
	return a.sess.Clear(ctx)
}

// IsAuthenticated reports whether a token is stored.
func (a *Auth) IsAuthenticated(ctx context.Context) bool {
	return a.sess.HasToken(ctx)
}

// CurrentUser returns the stored user, or nil when absent or unreadable.
func (a *Auth) CurrentUser(ctx context.Context) *model.User {
	u, err := a.sess.LoadUser(ctx)
	if err != nil {
		obs.Logger.Warn("current_user_unreadable", "error", err)
		return nil
	}
	return u
}

// rejected translates a login/registration failure. A 401 here is a refusal
// of the submitted form, not an expired session.
func rejected(err error, fallback string) error {
	out := translate(err, fallback)
	if e, ok := apierr.As(out); ok && e.Kind == apierr.KindAuth {
		e.Kind = apierr.KindService
	}
	return out
}
