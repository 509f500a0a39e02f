package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"
)

// Cart is the facade over the authenticated user's server-side cart.
type Cart struct {
	c Doer
}

func NewCart(c Doer) *Cart { return &Cart{c: c} }

// GetCart returns the remote cart.
func (s *Cart) GetCart(ctx context.Context) (model.RemoteCart, error) {
	var out model.RemoteCart
	if err := s.c.Do(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return model.RemoteCart{}, translate(err, MsgCartLoad)
	}
	return out, nil
}

// AddItem adds quantity units of productID and returns the resulting line.
func (s *Cart) AddItem(ctx context.Context, productID string, quantity int) (model.RemoteCartItem, error) {
	if quantity <= 0 {
		quantity = 1
	}
	var raw json.RawMessage
	body := model.AddItemRequest{ProductID: productID, Quantity: quantity}
	if err := s.c.Do(ctx, http.MethodPost, "/cart/items", body, &raw); err != nil {
		return model.RemoteCartItem{}, translate(err, MsgCartAdd)
	}
	item, err := decodeLine(raw, func(it model.RemoteCartItem) bool { return string(it.ProductID) == productID })
	if err != nil {
		return model.RemoteCartItem{}, &apierr.Error{Kind: apierr.KindService, Message: MsgCartAdd, Err: err}
	}
	return item, nil
}

// UpdateItemQuantity sets the quantity of the remote line itemID.
func (s *Cart) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (model.RemoteCartItem, error) {
	var raw json.RawMessage
	body := model.UpdateItemRequest{Quantity: quantity}
	if err := s.c.Do(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(itemID), body, &raw); err != nil {
		return model.RemoteCartItem{}, translate(err, MsgCartUpdate)
	}
	item, err := decodeLine(raw, func(it model.RemoteCartItem) bool { return string(it.ID) == itemID })
	if err != nil {
		return model.RemoteCartItem{}, &apierr.Error{Kind: apierr.KindService, Message: MsgCartUpdate, Err: err}
	}
	return item, nil
}

// RemoveItem deletes the remote line itemID.
func (s *Cart) RemoveItem(ctx context.Context, itemID string) error {
	if err := s.c.Do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil, nil); err != nil {
		return translate(err, MsgCartRemove)
	}
	return nil
}

// ClearCart empties the remote cart.
func (s *Cart) ClearCart(ctx context.Context) error {
	if err := s.c.Do(ctx, http.MethodDelete, "/cart", nil, nil); err != nil {
		return translate(err, MsgCartClear)
	}
	return nil
}

// decodeLine accepts either a single cart line or a whole cart and returns
// the line selected by match.
func decodeLine(raw json.RawMessage, match func(model.RemoteCartItem) bool) (model.RemoteCartItem, error) {
	if len(raw) == 0 {
		return model.RemoteCartItem{}, nil
	}
	if gjson.GetBytes(raw, "items").IsArray() {
		var cart model.RemoteCart
		if err := json.Unmarshal(raw, &cart); err != nil {
			return model.RemoteCartItem{}, errors.Wrap(err, "decode cart")
		}
		for _, it := range cart.Items {
			if match(it) {
				return it, nil
			}
		}
		return model.RemoteCartItem{}, errors.New("cart response does not contain the item")
	}
	var item model.RemoteCartItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.RemoteCartItem{}, errors.Wrap(err, "decode cart item")
	}
	return item, nil
}
