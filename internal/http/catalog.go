package httpapi

import (
	_ "embed"
	"os"

	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Products []model.Product `yaml:"products"`
}

// Catalog is the product list served by the stub. It is immutable once
// parsed.
type Catalog struct {
	order []string
	byID  map[string]model.Product
}

// LoadCatalog reads a YAML catalog from path, or the embedded one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read catalog")
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	c := &Catalog{byID: make(map[string]model.Product, len(f.Products))}
	for i, p := range f.Products {
		switch {
		case p.ID == "":
			return nil, errors.Errorf("product %d: missing id", i)
		case p.Price.IsNegative():
			return nil, errors.Errorf("product %s: negative price", p.ID)
		case p.Stock != nil && *p.Stock < 0:
			return nil, errors.Errorf("product %s: negative stock", p.ID)
		}
		id := string(p.ID)
		if _, dup := c.byID[id]; dup {
			return nil, errors.Errorf("product %s: duplicate id", p.ID)
		}
		c.byID[id] = p
		c.order = append(c.order, id)
	}
	return c, nil
}

// List returns all products in catalog order.
func (c *Catalog) List() []model.Product {
	out := make([]model.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Catalog) Get(id string) (model.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}
