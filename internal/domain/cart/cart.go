package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/book"
)

var (
	// ErrAlreadyInCart is returned when adding a book the cart already holds.
	ErrAlreadyInCart = errors.New("book already in cart")
	// ErrNotInCart is returned when changing a line the cart does not hold.
	ErrNotInCart = errors.New("book not in cart")
	// ErrInvalidBook is returned for non-positive book ids.
	ErrInvalidBook = errors.New("invalid book id")
)

// Line is one entry of a user's cart. Book is filled in from the catalog
// when available.
type Line struct {
	BookID   int64
	Quantity int
	Book     *book.Book
}

// Quantities converts lines to the form used for totals.
func Quantities(lines []Line) []book.Quantity {
	out := make([]book.Quantity, len(lines))
	for i, l := range lines {
		out[i] = book.Quantity{BookID: l.BookID, Quantity: l.Quantity}
	}
	return out
}

// Repository stores cart lines per user.
type Repository interface {
	// List returns all lines of the user's cart, empty when there is none.
	List(ctx context.Context, userID int64) ([]Line, error)
	Add(ctx context.Context, userID, bookID int64) error
	Remove(ctx context.Context, userID, bookID int64) error
	// Increment and Decrement return the new quantity; Decrement removes the
	// line and returns 0 when the quantity would drop below one.
	Increment(ctx context.Context, userID, bookID int64) (int, error)
	Decrement(ctx context.Context, userID, bookID int64) (int, error)
	// Clear deletes every line. Clearing an empty cart succeeds. A non-empty
	// key keeps the cleared lines restorable under that key.
	Clear(ctx context.Context, userID int64, key string) error
	// Restore merges the lines cleared under key back into the cart, keeping
	// lines that exist now. It returns the number of lines restored.
	Restore(ctx context.Context, userID int64, key string) (int, error)
}

// Catalog resolves book ids in one round trip.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]book.Book, error)
}
