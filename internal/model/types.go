// Package model defines domain types shared by the client, the state container
// and the stub backend.
package model

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by the remote API. Stock nil means unbounded.
type Product struct {
	ID          ID              `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Image       string          `json:"image" yaml:"image"`
	Stock       *int            `json:"stock,omitempty" yaml:"stock,omitempty"`
}

// InStock reports whether qty units can be ordered.
func (p Product) InStock(qty int) bool {
	if p.Stock == nil {
		return true
	}
	return *p.Stock >= qty
}

// CartItem is a product line held in the local cart.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price × quantity.
func (it CartItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Cart is an ordered list of items, first-add order.
type Cart []CartItem

// ItemCount returns the sum of quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c {
		n += it.Quantity
	}
	return n
}

// Total returns the sum of price × quantity.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Find returns the index of the item for productID or -1.
func (c Cart) Find(productID string) int {
	for i, it := range c {
		if string(it.ID) == productID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that does not share the backing array.
func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// User is the authenticated account profile.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session pairs a bearer token with its user.
type Session struct {
	Token string
	User  *User
}

// Valid reports whether both halves of the session are present.
func (s Session) Valid() bool { return s.Token != "" && s.User != nil }
