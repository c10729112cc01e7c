package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
)

// Catalog talks to the catalog service.
type Catalog struct {
	c *client
}

var (
	_ cart.Catalog  = (*Catalog)(nil)
	_ order.Catalog = (*Catalog)(nil)
)

// NewCatalog creates a Catalog client for baseURL.
func NewCatalog(baseURL string, opts Options) (*Catalog, error) {
	c, err := newClient("catalog", baseURL, opts)
	if err != nil {
		return nil, err
	}
	return &Catalog{c: c}, nil
}

// GetByIDs calls GET /books?ids=... in one round trip. An empty ids slice
// makes no call.
func (c *Catalog) GetByIDs(ctx context.Context, ids []int64) ([]book.Book, error) {
	if len(ids) == 0 {
		return []book.Book{}, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	r, err := c.c.call(ctx, http.MethodGet, "/books", url.Values{"ids": {strings.Join(parts, ",")}}, nil)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, c.c.unexpected(r)
	}
	books, err := decodeBooks(r.body)
	if err != nil {
		return nil, c.c.malformed(r, err)
	}
	return books, nil
}
