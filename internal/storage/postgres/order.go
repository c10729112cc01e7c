package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/order"
)

const (
	lockUserSQL = `SELECT pg_advisory_xact_lock($1)`

	insertOrderSQL = `INSERT INTO orders (user_id, payment_id, address, status_id, checkout_date, delivery_date)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	selectOrderSQL = `SELECT o.id, o.user_id, o.payment_id, p.name, o.address, o.status_id,
		o.checkout_date, o.delivery_date
		FROM orders o JOIN payment p ON p.id = o.payment_id`

	selectLinesSQL = `SELECT order_id, book_id, quantity FROM items_in_order
		WHERE order_id = ANY($1) ORDER BY order_id, id`

	updateStatusSQL = `UPDATE orders SET status_id = $2 WHERE id = $1`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Begin opens a staging transaction.
func (s *OrderStore) Begin(ctx context.Context) (order.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	return &orderTx{tx: tx}, nil
}

// ListByUser returns the user's orders with lines, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, selectOrderSQL+` WHERE o.user_id = $1 ORDER BY o.id DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Get returns one order with lines.
func (s *OrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, selectOrderSQL+` WHERE o.id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	orders := []order.Order{o}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// SetStatus updates the status of a committed order.
func (s *OrderStore) SetStatus(ctx context.Context, id int64, status order.Status) error {
	tag, err := s.pool.Exec(ctx, updateStatusSQL, id, int(status))
	if err != nil {
		return errors.Wrapf(err, "set order %d status", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (s *OrderStore) loadLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	idx := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		idx[o.ID] = i
	}
	rows, err := s.pool.Query(ctx, selectLinesSQL, ids)
	if err != nil {
		return errors.Wrap(err, "load order lines")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.BookID, &l.Quantity); err != nil {
			return errors.Wrap(err, "scan order line")
		}
		i := idx[orderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return errors.Wrap(rows.Err(), "load order lines")
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status int
	)
	err := row.Scan(&o.ID, &o.UserID, &o.PaymentMethodID, &o.PaymentMethod, &o.ShippingAddress,
		&status, &o.CheckoutDate, &o.DeliveryDate)
	o.Status = order.Status(status)
	return o, err
}

// orderTx stages one checkout.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockUser(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, lockUserSQL, userID); err != nil {
		return errors.Wrap(err, "advisory lock")
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.PaymentMethodID, o.ShippingAddress, int(o.Status), o.CheckoutDate, o.DeliveryDate,
	).Scan(&o.ID)
	if err != nil {
		if _, ok := pgError(err, codeForeignKeyViolation); ok {
			return errors.Wrapf(order.ErrUnknownPaymentMethod, "payment method %d", o.PaymentMethodID)
		}
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (t *orderTx) InsertLines(ctx context.Context, o *order.Order) error {
	rows := make([][]any, len(o.Lines))
	for i, l := range o.Lines {
		rows[i] = []any{o.ID, o.UserID, l.BookID, l.Quantity}
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"items_in_order"},
		[]string{"order_id", "user_id", "book_id", "quantity"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, "insert order lines")
	}
	return nil
}

func (t *orderTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *orderTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
