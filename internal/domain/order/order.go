package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/book"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrNotOwner is returned when a caller reads an order of another user.
	ErrNotOwner = errors.New("order belongs to another user")
	// ErrUnknownPaymentMethod is returned by a Tx when the payment method id
	// does not reference a known payment method.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
)

// Status is the lifecycle state of a committed order.
type Status int

// Order statuses. Values match the order_status reference table.
const (
	StatusPending   Status = 1
	StatusShipped   Status = 2
	StatusCancelled Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusShipped:
		return "shipped"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultDeliveryWindow is added to the checkout date to get the delivery date.
const DefaultDeliveryWindow = 7 * 24 * time.Hour

// Order is a committed purchase. Once committed only Status changes.
type Order struct {
	ID              int64
	UserID          int64
	PaymentMethodID int64
	// PaymentMethod is the display name, filled in on reads.
	PaymentMethod   string
	ShippingAddress string
	Status          Status
	CheckoutDate    time.Time
	DeliveryDate    time.Time
	Lines           []Line
}

// Line is one book of an order.
type Line struct {
	BookID   int64
	Quantity int
}

// Quantities converts order lines to the form used for totals.
func (o *Order) Quantities() []book.Quantity {
	out := make([]book.Quantity, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = book.Quantity{BookID: l.BookID, Quantity: l.Quantity}
	}
	return out
}

// Store persists orders. All checkout writes go through a Tx so that an
// order and its lines become visible together or not at all.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// Get returns the order with its lines.
	Get(ctx context.Context, id int64) (*Order, error)
	SetStatus(ctx context.Context, id int64, status Status) error
}

// Tx is an open local transaction used to stage one checkout.
type Tx interface {
	// LockUser serializes checkouts of userID across processes until the
	// transaction ends. Checkout takes it before reading the cart.
	LockUser(ctx context.Context, userID int64) error
	// InsertOrder writes the header and sets o.ID and o.CheckoutDate.
	InsertOrder(ctx context.Context, o *Order) error
	InsertLines(ctx context.Context, o *Order) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Catalog resolves book ids in one round trip. Unknown ids are omitted.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]book.Book, error)
}
