package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/book"
)

// View is a cart enriched with catalog data.
type View struct {
	Lines []Line
	Total decimal.Decimal
}

// Service implements cart operations on top of a Repository, enriching lines
// with catalog data for display.
type Service struct {
	repo    Repository
	catalog Catalog
}

// NewService creates a cart Service.
func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// Lines returns the user's cart lines with book info attached where the
// catalog knows the book. A catalog failure leaves Book nil on every line.
func (s *Service) Lines(ctx context.Context, userID int64) ([]Line, error) {
	lines, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	if len(lines) == 0 {
		return lines, nil
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.BookID
	}
	books, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Catalog lookup failed, serving cart without book info", zap.Error(err))
		return lines, nil
	}

	idx := book.Index(books)
	for i := range lines {
		if b, ok := idx[lines[i].BookID]; ok {
			lines[i].Book = &b
		}
	}
	return lines, nil
}

// View returns the cart with its total over the books the catalog returned.
func (s *Service) View(ctx context.Context, userID int64) (*View, error) {
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}

	books := make([]book.Book, 0, len(lines))
	for _, l := range lines {
		if l.Book != nil {
			books = append(books, *l.Book)
		}
	}
	return &View{
		Lines: lines,
		Total: book.Total(Quantities(lines), book.Index(books)),
	}, nil
}

// Add puts one copy of bookID in the cart.
func (s *Service) Add(ctx context.Context, userID, bookID int64) error {
	if bookID <= 0 {
		return ErrInvalidBook
	}
	return s.repo.Add(ctx, userID, bookID)
}

// Remove deletes the line for bookID.
func (s *Service) Remove(ctx context.Context, userID, bookID int64) error {
	return s.repo.Remove(ctx, userID, bookID)
}

// Increment adds one copy to an existing line.
func (s *Service) Increment(ctx context.Context, userID, bookID int64) (int, error) {
	return s.repo.Increment(ctx, userID, bookID)
}

// Decrement removes one copy, dropping the line at zero.
func (s *Service) Decrement(ctx context.Context, userID, bookID int64) (int, error) {
	return s.repo.Decrement(ctx, userID, bookID)
}

// Clear empties the cart. It is idempotent.
func (s *Service) Clear(ctx context.Context, userID int64, key string) error {
	if err := s.repo.Clear(ctx, userID, key); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	zctx.From(ctx).Info("Cart cleared", zap.Int64("user_id", userID), zap.Bool("restorable", key != ""))
	return nil
}

// Restore brings back the lines cleared under key.
func (s *Service) Restore(ctx context.Context, userID int64, key string) (int, error) {
	n, err := s.repo.Restore(ctx, userID, key)
	if err != nil {
		return 0, errors.Wrap(err, "restore cart")
	}
	zctx.From(ctx).Info("Cart restored", zap.Int64("user_id", userID), zap.Int("lines", n))
	return n, nil
}
