package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/session"
)

// DefaultRemoteTimeout bounds each remote call made during a checkout.
const DefaultRemoteTimeout = 3 * time.Second

// SessionVerifier resolves the caller of a checkout.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) session.Result
}

// CartRemote is the cart service as seen from the order service. The token
// identifies the user and is forwarded as the delegated credential.
type CartRemote interface {
	ListCart(ctx context.Context, token string) ([]cart.Line, error)
	// ClearCart empties the cart. Repeating it with the same key is a no-op.
	ClearCart(ctx context.Context, token, key string) error
	// RestoreCart puts back the lines cleared under key.
	RestoreCart(ctx context.Context, token, key string) error
}

// State is a step of the checkout saga.
type State string

// Saga states in order. A checkout moves forward one state per step and
// either reaches StateCommitted or stops with an *Error.
const (
	StateStart       State = "start"
	StateAuthorized  State = "authorized"
	StateCartFetched State = "cart_fetched"
	StateValidated   State = "validated"
	StateStaged      State = "staged"
	StateCleared     State = "cleared"
	StateCommitted   State = "committed"
)

// Checkout turns a user's cart into a committed order. The cart is cleared
// only while the order is staged in an open transaction; if clearing fails
// the transaction is rolled back and lines cleared under the checkout key are
// restored, so either both effects happen or neither does.
type Checkout struct {
	sessions SessionVerifier
	carts    CartRemote
	store    Store

	locks         *userLocks
	now           func() time.Time
	newKey        func() string
	remoteTimeout time.Duration
	delivery      time.Duration

	meter    metric.Meter
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// CheckoutOption customises a Checkout.
type CheckoutOption func(*Checkout)

// WithCheckoutMeter records attempts and durations on m.
func WithCheckoutMeter(m metric.Meter) CheckoutOption {
	return func(c *Checkout) {
		if m != nil {
			c.meter = m
		}
	}
}

// WithRemoteTimeout overrides DefaultRemoteTimeout.
func WithRemoteTimeout(d time.Duration) CheckoutOption {
	return func(c *Checkout) {
		if d > 0 {
			c.remoteTimeout = d
		}
	}
}

// WithDeliveryWindow overrides DefaultDeliveryWindow.
func WithDeliveryWindow(d time.Duration) CheckoutOption {
	return func(c *Checkout) {
		if d > 0 {
			c.delivery = d
		}
	}
}

// WithClock sets the time source used for order dates.
func WithClock(now func() time.Time) CheckoutOption {
	return func(c *Checkout) {
		if now != nil {
			c.now = now
		}
	}
}

// WithKeyGenerator sets the generator of checkout keys.
func WithKeyGenerator(gen func() string) CheckoutOption {
	return func(c *Checkout) {
		if gen != nil {
			c.newKey = gen
		}
	}
}

// NewCheckout creates a Checkout.
func NewCheckout(sessions SessionVerifier, carts CartRemote, store Store, opts ...CheckoutOption) (*Checkout, error) {
	c := &Checkout{
		sessions:      sessions,
		carts:         carts,
		store:         store,
		locks:         newUserLocks(),
		now:           time.Now,
		newKey:        func() string { return uuid.NewString() },
		remoteTimeout: DefaultRemoteTimeout,
		delivery:      DefaultDeliveryWindow,
		meter:         noop.NewMeterProvider().Meter("order"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	var err error
	if c.attempts, err = c.meter.Int64Counter("checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	if c.duration, err = c.meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create duration histogram")
	}

	return c, nil
}

// Run executes one checkout for the holder of token with the raw request
// body. Failures are always *Error.
func (c *Checkout) Run(ctx context.Context, token string, body []byte) (o *Order, err error) {
	start := time.Now()
	s := &saga{
		c:     c,
		token: token,
		body:  body,
		key:   c.newKey(),
		state: StateStart,
	}
	ctx = zctx.With(ctx, zap.String("checkout_key", s.key))

	defer func() {
		if r := recover(); r != nil {
			o, err = nil, s.fail(ctx, &Error{Kind: KindInternal, Err: errors.Errorf("panic: %v", r)})
		}
		if s.release != nil {
			s.release()
		}
		c.record(ctx, err, time.Since(start))
	}()

	for s.state != StateCommitted {
		if err := s.step(ctx); err != nil {
			return nil, s.fail(ctx, err)
		}
	}

	zctx.From(ctx).Info("Order committed",
		zap.Int64("order_id", s.order.ID),
		zap.Int64("user_id", s.order.UserID),
		zap.Int("lines", len(s.order.Lines)),
	)
	return s.order, nil
}

func (c *Checkout) record(ctx context.Context, err error, d time.Duration) {
	outcome := string(StateCommitted)
	var e *Error
	if errors.As(err, &e) {
		outcome = e.Kind.String()
		if e.Upstream != "" {
			outcome += ":" + e.Upstream
		}
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.attempts.Add(ctx, 1, attrs)
	c.duration.Record(ctx, d.Seconds(), attrs)
}

// saga holds the state of one checkout.
type saga struct {
	c     *Checkout
	token string
	body  []byte
	key   string
	state State

	userID   int64
	req      Request
	snapshot []cart.Line
	tx       Tx
	order    *Order
	release  func()
}

func (s *saga) step(ctx context.Context) error {
	switch s.state {
	case StateStart:
		return s.authorize(ctx)
	case StateAuthorized:
		return s.fetchCart(ctx)
	case StateCartFetched:
		return s.validate()
	case StateValidated:
		return s.stage(ctx)
	case StateStaged:
		return s.clear(ctx)
	case StateCleared:
		return s.commit(ctx)
	default:
		return &Error{Kind: KindInternal, Err: errors.Errorf("unexpected state %q", s.state)}
	}
}

func (s *saga) authorize(ctx context.Context) error {
	res := s.c.sessions.Verify(ctx, s.token)
	if !res.Caller.IsAuthenticated() {
		return &Error{
			Kind:         KindUnauthorized,
			StaleSession: res.Stale(),
			Err:          errors.Errorf("session %s", res.Outcome),
		}
	}
	req, err := ParseRequest(s.body)
	if err != nil {
		return &Error{Kind: KindBadRequest, Err: err}
	}
	s.userID = res.Caller.UserID
	s.req = req
	s.state = StateAuthorized
	return nil
}

// fetchCart reads the cart once both locks are held: the in-process one and
// the user's advisory lock in the staging transaction. A concurrent checkout
// on another replica therefore sees the cart only after this one ends.
func (s *saga) fetchCart(ctx context.Context) error {
	release, err := s.c.locks.acquire(ctx, s.userID)
	if err != nil {
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "wait for concurrent checkout")}
	}
	s.release = release

	tx, err := s.c.store.Begin(ctx)
	if err != nil {
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "begin")}
	}
	s.tx = tx
	if err := tx.LockUser(ctx, s.userID); err != nil {
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "lock user")}
	}

	rctx, cancel := context.WithTimeout(ctx, s.c.remoteTimeout)
	defer cancel()
	lines, err := s.c.carts.ListCart(rctx, s.token)
	if err != nil {
		return &Error{Kind: KindUpstreamUnavailable, Upstream: UpstreamCart, Err: err}
	}
	s.snapshot = lines
	s.state = StateCartFetched
	return nil
}

func (s *saga) validate() error {
	if len(s.snapshot) == 0 {
		return &Error{Kind: KindEmptyCart, Err: errors.New("cart has no lines")}
	}
	seen := make(map[int64]struct{}, len(s.snapshot))
	for _, l := range s.snapshot {
		if l.BookID <= 0 || l.Quantity <= 0 {
			return &Error{
				Kind:     KindUpstreamUnavailable,
				Upstream: UpstreamCart,
				Err:      errors.Errorf("malformed cart line: book %d quantity %d", l.BookID, l.Quantity),
			}
		}
		if _, ok := seen[l.BookID]; ok {
			return &Error{
				Kind:     KindUpstreamUnavailable,
				Upstream: UpstreamCart,
				Err:      errors.Errorf("duplicate cart line for book %d", l.BookID),
			}
		}
		seen[l.BookID] = struct{}{}
	}
	s.state = StateValidated
	return nil
}

func (s *saga) stage(ctx context.Context) error {
	tx := s.tx
	if tx == nil {
		return &Error{Kind: KindInternal, Err: errors.New("no open transaction")}
	}

	now := s.c.now().UTC()
	o := &Order{
		UserID:          s.userID,
		PaymentMethodID: s.req.PaymentMethodID,
		ShippingAddress: s.req.ShippingAddress,
		Status:          StatusPending,
		CheckoutDate:    now,
		DeliveryDate:    now.Add(s.c.delivery),
		Lines:           make([]Line, len(s.snapshot)),
	}
	for i, l := range s.snapshot {
		o.Lines[i] = Line{BookID: l.BookID, Quantity: l.Quantity}
	}

	if err := tx.InsertOrder(ctx, o); err != nil {
		if errors.Is(err, ErrUnknownPaymentMethod) {
			return &Error{Kind: KindBadRequest, Err: err}
		}
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "insert order")}
	}
	if err := tx.InsertLines(ctx, o); err != nil {
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "insert lines")}
	}
	s.order = o
	s.state = StateStaged
	return nil
}

func (s *saga) clear(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, s.c.remoteTimeout)
	defer cancel()
	if err := s.c.carts.ClearCart(rctx, s.token, s.key); err != nil {
		// The cart service may have cleared the cart before failing.
		s.compensate(ctx, "clear")
		return &Error{Kind: KindUpstreamUnavailable, Upstream: UpstreamCartClear, Err: err}
	}
	s.state = StateCleared
	return nil
}

func (s *saga) commit(ctx context.Context) error {
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		s.compensate(ctx, "commit")
		return &Error{Kind: KindInternal, Err: errors.Wrap(err, "commit")}
	}
	s.state = StateCommitted
	return nil
}

// compensate puts back whatever was cleared under the checkout key after the
// named step failed. Restoring a cart that was never cleared changes nothing.
// It is best effort: a failure leaves an empty cart and no order, which is
// logged.
func (s *saga) compensate(ctx context.Context, step string) {
	lg := zctx.From(ctx).With(zap.String("failed_step", step), zap.Int64("user_id", s.userID))
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.remoteTimeout)
	defer cancel()
	if err := s.c.carts.RestoreCart(rctx, s.token, s.key); err != nil {
		lg.Error("Cart restore failed", zap.Error(err))
		return
	}
	lg.Warn("Cart restored")
}

// fail rolls back any open transaction and normalizes err to *Error.
func (s *saga) fail(ctx context.Context, err error) error {
	lg := zctx.From(ctx)
	if s.tx != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.remoteTimeout)
		if rerr := s.tx.Rollback(rctx); rerr != nil {
			lg.Error("Rollback failed", zap.Error(rerr))
		}
		cancel()
		s.tx = nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternal, Err: err}
	}
	if e.State == "" {
		e.State = s.state
	}

	fields := []zap.Field{
		zap.String("state", string(e.State)),
		zap.String("kind", e.Kind.String()),
		zap.Error(e.Err),
	}
	if s.userID != 0 {
		fields = append(fields, zap.Int64("user_id", s.userID))
	}
	switch e.Kind {
	case KindInternal:
		lg.Error("Checkout failed", fields...)
	case KindUpstreamUnavailable:
		lg.Warn("Checkout failed", fields...)
	default:
		lg.Info("Checkout rejected", fields...)
	}
	return e
}
