// Package state holds the in-memory application state: the local cart and the
// current user. Every transition is serialized, total and never fails;
// durable writes that go wrong are logged and otherwise ignored.
package state

import (
	"context"
	"sync"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/shopspring/decimal"
)

// SessionStore is the durable storage the container reads at construction
// and clears on logout; *session.Store implements it.
type SessionStore interface {
	HasToken(ctx context.Context) bool
	LoadUser(ctx context.Context) (*model.User, error)
	Clear(ctx context.Context) error
	SaveCart(ctx context.Context, cart model.Cart) error
	LoadCart(ctx context.Context) (model.Cart, error)
	ClearCart(ctx context.Context) error
}

// Options configures a Container.
type Options struct {
	// PersistCart writes the cart to the session store after each cart
	// transition and restores it at construction.
	PersistCart bool
}

// Snapshot is a consistent read of the whole state.
type Snapshot struct {
	Cart      model.Cart
	User      *model.User
	ItemCount int
	Total     decimal.Decimal
}

// Container is the application state machine.
type Container struct {
	sess        SessionStore
	persistCart bool

	mu        sync.Mutex
	cart      model.Cart
	user      *model.User
	listeners map[int]func(model.CartChange)
	nextID    int
	order     []int
}

// New builds a Container and hydrates it from sess. The user is restored
// only when a token is present; a token without a readable user is dropped.
func New(ctx context.Context, sess SessionStore, opts Options) *Container {
	c := &Container{
		sess:        sess,
		persistCart: opts.PersistCart,
		cart:        model.Cart{},
		listeners:   map[int]func(model.CartChange){},
	}
	if sess == nil {
		return c
	}
	if sess.HasToken(ctx) {
		u, err := sess.LoadUser(ctx)
		switch {
		case err != nil:
			obs.Logger.Warn("session_user_unreadable", "error", err)
			c.clearSession(ctx)
		case u == nil:
			obs.Logger.Warn("session_user_missing")
			c.clearSession(ctx)
		default:
			c.user = u
		}
	}
	if c.persistCart {
		cart, err := sess.LoadCart(ctx)
		if err != nil {
			obs.Logger.Warn("cart_restore_failed", "error", err)
			if err := sess.ClearCart(ctx); err != nil {
				obs.Logger.Warn("cart_clear_failed", "error", err)
			}
		} else {
			c.cart = normalize(cart)
		}
	}
	obs.Logger.Debug("state_hydrated", "authenticated", c.user != nil, "cart_lines", len(c.cart))
	return c
}

// Subscribe registers fn to receive every cart change, in transition order.
// fn runs while the container is locked and must not call back into it.
// The returned func removes the subscription.
func (c *Container) Subscribe(fn func(model.CartChange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// AddToCart adds qty units of p. An existing line for the same product is
// incremented; otherwise a line is appended. qty <= 0 counts as 1.
func (c *Container) AddToCart(ctx context.Context, p model.Product, qty int) {
	if qty <= 0 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var line int
	if i := c.cart.Find(string(p.ID)); i >= 0 {
		c.cart[i].Quantity += qty
		line = c.cart[i].Quantity
	} else {
		c.cart = append(c.cart, model.CartItem{Product: p, Quantity: qty})
		line = qty
	}
	c.cartChanged(ctx, model.CartChange{Op: model.CartAdd, ProductID: string(p.ID), Quantity: line})
}

// RemoveFromCart drops the line for productID. Absent ids are a no-op.
func (c *Container) RemoveFromCart(ctx context.Context, productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(ctx, productID)
}

// UpdateQuantity overwrites the quantity of the line for productID.
// qty <= 0 removes the line; absent ids are a no-op.
func (c *Container) UpdateQuantity(ctx context.Context, productID string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if qty <= 0 {
		c.remove(ctx, productID)
		return
	}
	i := c.cart.Find(productID)
	if i < 0 {
		return
	}
	c.cart[i].Quantity = qty
	c.cartChanged(ctx, model.CartChange{Op: model.CartUpdate, ProductID: productID, Quantity: qty})
}

// ClearCart empties the cart. The user is untouched.
func (c *Container) ClearCart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cart = model.Cart{}
	c.cartChanged(ctx, model.CartChange{Op: model.CartClear})
}

// SetUser replaces the current user; nil means signed out.
func (c *Container) SetUser(u *model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = copyUser(u)
}

// Logout clears the durable session and resets user and cart together.
// Remote cart mirrors are not notified: the server-side cart outlives the
// local session.
func (c *Container) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	c.cart = model.Cart{}
	if c.sess == nil {
		return
	}
	c.clearSession(ctx)
	if err := c.sess.ClearCart(ctx); err != nil {
		obs.Logger.Warn("cart_clear_failed", "error", err)
	}
	obs.Logger.Info("logged_out")
}

// Cart returns a copy of the cart lines.
func (c *Container) Cart() model.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Clone()
}

// User returns a copy of the current user, or nil.
func (c *Container) User() *model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

// IsAuthenticated reports whether a user is set.
func (c *Container) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user != nil
}

// ItemCount returns the number of units in the cart.
func (c *Container) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.ItemCount()
}

// Total returns the cart value.
func (c *Container) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Total()
}

// Snapshot returns cart, user and derived values from one read.
func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Cart:      c.cart.Clone(),
		User:      copyUser(c.user),
		ItemCount: c.cart.ItemCount(),
		Total:     c.cart.Total(),
	}
}

func (c *Container) remove(ctx context.Context, productID string) {
	i := c.cart.Find(productID)
	if i < 0 {
		return
	}
	c.cart = append(c.cart[:i:i], c.cart[i+1:]...)
	c.cartChanged(ctx, model.CartChange{Op: model.CartRemove, ProductID: productID})
}

// cartChanged persists the cart and notifies listeners. Callers hold mu.
func (c *Container) cartChanged(ctx context.Context, ch model.CartChange) {
	if c.persistCart && c.sess != nil {
		if err := c.sess.SaveCart(ctx, c.cart); err != nil {
			obs.Logger.Warn("cart_persist_failed", "op", string(ch.Op), "error", err)
		}
	}
	for _, id := range c.order {
		c.listeners[id](ch)
	}
}

func (c *Container) clearSession(ctx context.Context) {
	if err := c.sess.Clear(ctx); err != nil {
		obs.Logger.Warn("session_clear_failed", "error", err)
	}
}

// normalize merges duplicate product lines and drops non-positive quantities
// from a restored cart.
func normalize(in model.Cart) model.Cart {
	out := model.Cart{}
	for _, it := range in {
		if it.Quantity <= 0 {
			continue
		}
		if i := out.Find(string(it.ID)); i >= 0 {
			out[i].Quantity += it.Quantity
			continue
		}
		out = append(out, it)
	}
	return out
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
