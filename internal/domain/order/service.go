package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/book"
)

// Details is an order with its books resolved through the catalog.
type Details struct {
	Order *Order
	Books map[int64]book.Book
	Total decimal.Decimal
	// Partial is set when the catalog could not be reached; Books is empty
	// and Total is zero then.
	Partial bool
}

// Service reads and updates committed orders.
type Service struct {
	store   Store
	catalog Catalog
}

// NewService creates a Service.
func NewService(store Store, catalog Catalog) *Service {
	return &Service{store: store, catalog: catalog}
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns an order regardless of owner.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// Details returns order id owned by userID. The total is recomputed from
// current catalog prices; books missing from the catalog contribute nothing.
func (s *Service) Details(ctx context.Context, userID, id int64) (*Details, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}

	ids := make([]int64, len(o.Lines))
	for i, l := range o.Lines {
		ids[i] = l.BookID
	}
	d := &Details{Order: o, Books: map[int64]book.Book{}, Total: decimal.Zero}
	if len(ids) == 0 {
		return d, nil
	}

	books, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Catalog unavailable for order details",
			zap.Int64("order_id", id),
			zap.Error(err),
		)
		d.Partial = true
		return d, nil
	}
	d.Books = book.Index(books)
	d.Total = book.Total(o.Quantities(), d.Books)
	return d, nil
}

// Cancel marks a committed order cancelled. It makes no remote calls and
// cancelling twice is not an error.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	if err := s.store.SetStatus(ctx, id, StatusCancelled); err != nil {
		return errors.Wrapf(err, "cancel order %d", id)
	}
	return nil
}
