package session

import (
	"context"
	"encoding/json"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/go-faster/errors"
)

// Durable storage keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
	KeyCart  = "cart"
)

// ErrCorruptSession is returned when a persisted record exists but cannot be
// decoded.
var ErrCorruptSession = errors.New("corrupt session record")

// Store reads and writes the session on top of a Storage backend. Token and
// user are written and cleared together.
type Store struct {
	storage Storage
}

// NewStore returns a Store over storage.
func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Save persists token and user. A partial write is rolled back.
func (s *Store) Save(ctx context.Context, token string, user model.User) error {
	if token == "" {
		return errors.New("empty session token")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "encode user")
	}
	if err := s.storage.Set(ctx, KeyUser, string(raw)); err != nil {
		return errors.Wrap(err, "save user")
	}
	if err := s.storage.Set(ctx, KeyToken, token); err != nil {
		_ = s.storage.Delete(ctx, KeyUser)
		return errors.Wrap(err, "save token")
	}
	return nil
}

// Clear removes token and user.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyToken, KeyUser); err != nil {
		return errors.Wrap(err, "clear session")
	}
	obs.Logger.Debug("session_cleared")
	return nil
}

// Token returns the stored bearer token or "" when absent or unreadable.
func (s *Store) Token(ctx context.Context) string {
	v, ok, err := s.storage.Get(ctx, KeyToken)
	if err != nil {
		obs.Logger.Warn("session_read_failed", "key", KeyToken, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// HasToken reports whether a token is stored.
func (s *Store) HasToken(ctx context.Context) bool {
	return s.Token(ctx) != ""
}

// LoadUser returns the stored user, nil when absent, or ErrCorruptSession
// when the stored value is not a user record.
func (s *Store) LoadUser(ctx context.Context) (*model.User, error) {
	raw, ok, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, errors.Wrap(ErrCorruptSession, err.Error())
	}
	return &u, nil
}

// LoadSession returns the stored session when both halves are present and
// decodable, and the zero Session otherwise.
func (s *Store) LoadSession(ctx context.Context) model.Session {
	token := s.Token(ctx)
	if token == "" {
		return model.Session{}
	}
	u, err := s.LoadUser(ctx)
	if err != nil || u == nil {
		return model.Session{}
	}
	return model.Session{Token: token, User: u}
}

// SaveCart persists the local cart.
func (s *Store) SaveCart(ctx context.Context, cart model.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.storage.Set(ctx, KeyCart, string(raw)); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// LoadCart returns the persisted cart, an empty cart when absent, or
// ErrCorruptSession when it cannot be decoded.
func (s *Store) LoadCart(ctx context.Context) (model.Cart, error) {
	raw, ok, err := s.storage.Get(ctx, KeyCart)
	if err != nil {
		return model.Cart{}, errors.Wrap(err, "load cart")
	}
	if !ok || raw == "" {
		return model.Cart{}, nil
	}
	var c model.Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return model.Cart{}, errors.Wrap(ErrCorruptSession, err.Error())
	}
	if c == nil {
		c = model.Cart{}
	}
	return c, nil
}

// ClearCart removes the persisted cart.
func (s *Store) ClearCart(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyCart); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
