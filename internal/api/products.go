package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/model"
)

// Products reads the catalog.
type Products struct {
	c Doer
}

func NewProducts(c Doer) *Products { return &Products{c: c} }

// ListAll returns every product.
func (p *Products) ListAll(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	if err := p.c.Do(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, translate(err, MsgProductsLoad)
	}
	if out == nil {
		out = []model.Product{}
	}
	return out, nil
}

// GetByID returns one product, or a NotFound error when the backend answers 404.
func (p *Products) GetByID(ctx context.Context, id string) (model.Product, error) {
	var out model.Product
	err := p.c.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out)
	if apierr.IsNotFound(err) {
		nf := apierr.NotFound(MsgProductNotFound)
		nf.Err = err
		return model.Product{}, nf
	}
	if err != nil {
		return model.Product{}, translate(err, MsgProductLoad)
	}
	return out, nil
}
