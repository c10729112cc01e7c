package book

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested book does not exist.
var ErrNotFound = errors.New("book not found")

// Book is a catalog entry available for purchase.
type Book struct {
	ID          int64
	Title       string
	Author      string
	Description string
	GenreID     int64
	Genre       string
	Year        int
	Publisher   string
	Price       decimal.Decimal
}

// Genre groups books in the catalog.
type Genre struct {
	ID   int64
	Name string
}

// Repository defines read operations for the catalog.
type Repository interface {
	List(ctx context.Context, sort SortKey) ([]Book, error)
	Search(ctx context.Context, query string, sort SortKey) ([]Book, error)
	GetByID(ctx context.Context, id int64) (*Book, error)
	// GetByIDs returns the books that exist among ids. Unknown ids are
	// omitted, not reported.
	GetByIDs(ctx context.Context, ids []int64) ([]Book, error)
	Genres(ctx context.Context) ([]Genre, error)
}

// Index maps books by id for lookups during rendering.
func Index(books []Book) map[int64]Book {
	m := make(map[int64]Book, len(books))
	for _, b := range books {
		m[b.ID] = b
	}
	return m
}
