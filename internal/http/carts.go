package httpapi

import (
	"sync"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	ErrItemNotFound      = errors.New("cart item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// CartStore keeps one server-side cart per user. Lines are merged by product.
type CartStore struct {
	mu    sync.Mutex
	carts map[string]*model.RemoteCart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: map[string]*model.RemoteCart{}}
}

// cartFor returns the user's cart, creating it. Callers hold mu.
func (s *CartStore) cartFor(userID string) *model.RemoteCart {
	c, ok := s.carts[userID]
	if !ok {
		c = &model.RemoteCart{ID: model.ID(uuid.NewString()), Items: []model.RemoteCartItem{}}
		s.carts[userID] = c
	}
	return c
}

// Get returns a copy of the user's cart.
func (s *CartStore) Get(userID string) model.RemoteCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCart(s.cartFor(userID))
}

// Add puts qty units of p in the user's cart, merging with an existing line.
func (s *CartStore) Add(userID string, p model.Product, qty int) (model.RemoteCartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	for i := range c.Items {
		if c.Items[i].ProductID != p.ID {
			continue
		}
		if !p.InStock(c.Items[i].Quantity + qty) {
			return model.RemoteCartItem{}, ErrInsufficientStock
		}
		c.Items[i].Quantity += qty
		return cloneItem(c.Items[i]), nil
	}
	if !p.InStock(qty) {
		return model.RemoteCartItem{}, ErrInsufficientStock
	}
	prod := p
	it := model.RemoteCartItem{ID: model.ID(uuid.NewString()), ProductID: p.ID, Quantity: qty, Product: &prod}
	c.Items = append(c.Items, it)
	return cloneItem(it), nil
}

// Update sets the quantity of one line. check validates the new quantity
// against the line's product.
func (s *CartStore) Update(userID, itemID string, qty int, check func(productID string, qty int) error) (model.RemoteCartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	for i := range c.Items {
		if string(c.Items[i].ID) != itemID {
			continue
		}
		if check != nil {
			if err := check(string(c.Items[i].ProductID), qty); err != nil {
				return model.RemoteCartItem{}, err
			}
		}
		c.Items[i].Quantity = qty
		return cloneItem(c.Items[i]), nil
	}
	return model.RemoteCartItem{}, ErrItemNotFound
}

// Remove deletes one line.
func (s *CartStore) Remove(userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(userID)
	for i := range c.Items {
		if string(c.Items[i].ID) == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the user's cart.
func (s *CartStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartFor(userID).Items = []model.RemoteCartItem{}
}

func cloneItem(it model.RemoteCartItem) model.RemoteCartItem {
	if it.Product != nil {
		p := *it.Product
		it.Product = &p
	}
	return it
}

func cloneCart(c *model.RemoteCart) model.RemoteCart {
	out := model.RemoteCart{ID: c.ID, Items: make([]model.RemoteCartItem, 0, len(c.Items))}
	for _, it := range c.Items {
		out.Items = append(out.Items, cloneItem(it))
	}
	return out
}
