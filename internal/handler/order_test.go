package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
)

type fakeRemoteCart struct {
	mu       sync.Mutex
	lines    map[string][]cart.Line
	listErr  error
	clearErr error
}

func (f *fakeRemoteCart) ListCart(_ context.Context, token string) ([]cart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lines[token], nil
}

func (f *fakeRemoteCart) ClearCart(_ context.Context, token, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.lines, token)
	return nil
}

func (f *fakeRemoteCart) RestoreCart(context.Context, string, string) error { return nil }

type memOrders struct {
	mu     sync.Mutex
	orders map[int64]*order.Order
	next   int64
}

func (m *memOrders) Begin(context.Context) (order.Tx, error) { return &memOrderTx{m: m}, nil }

func (m *memOrders) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []order.Order{}
	for id := m.next; id > 0; id-- {
		if o, ok := m.orders[id]; ok && o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) Get(_ context.Context, id int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) SetStatus(_ context.Context, id int64, s order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = s
	return nil
}

type memOrderTx struct {
	m      *memOrders
	staged *order.Order
}

func (t *memOrderTx) LockUser(context.Context, int64) error { return nil }

func (t *memOrderTx) InsertOrder(_ context.Context, o *order.Order) error {
	if o.PaymentMethodID > 2 {
		return order.ErrUnknownPaymentMethod
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.next++
	o.ID = t.m.next
	t.staged = o
	return nil
}

func (t *memOrderTx) InsertLines(context.Context, *order.Order) error { return nil }

func (t *memOrderTx) Commit(context.Context) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	cp := *t.staged
	t.m.orders[cp.ID] = &cp
	return nil
}

func (t *memOrderTx) Rollback(context.Context) error { return nil }

type orderEnv struct {
	h     http.Handler
	carts *fakeRemoteCart
	store *memOrders
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()
	v := &tokenVerifier{known: map[string]int64{"tok-7": 7, "tok-8": 8}}
	carts := &fakeRemoteCart{lines: map[string][]cart.Line{
		"tok-7": {{BookID: 1, Quantity: 2}, {BookID: 2, Quantity: 1}},
	}}
	store := &memOrders{orders: map[int64]*order.Order{}}

	checkout, err := order.NewCheckout(v, carts, store)
	require.NoError(t, err)
	h := NewOrder(checkout, order.NewService(store, &fakeBooks{books: testBooks}), v, Cookies{}, nil)
	return &orderEnv{
		h:     newRouter(nil, func(r chi.Router) { h.Mount(r) }),
		carts: carts,
		store: store,
	}
}

const checkoutBody = `{"payment_method":1,"shipping_address":"Main St 1"}`

func TestCheckout_OK(t *testing.T) {
	env := newOrderEnv(t)

	w := do(t, env.h, http.MethodPost, "/checkout", checkoutBody, withCookie("tok-7"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.OrderID)
	assert.Equal(t, "pending", resp.Order.Status)
	assert.Len(t, resp.Order.Lines, 2)
	assert.Empty(t, env.carts.lines["tok-7"])

	w = do(t, env.h, http.MethodGet, "/order/1", "", withCookie("tok-7"))
	require.Equal(t, http.StatusOK, w.Code)
	var d orderDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "25.00", d.Total)
	require.NotNil(t, d.Order.Lines[0].BookInfo)
}

func TestCheckout_Errors(t *testing.T) {
	for _, tt := range []struct {
		name    string
		cookie  string
		body    string
		setup   func(*orderEnv)
		status  int
		errMsg  string
		details string
		deleted bool
	}{
		{name: "NoCookie", body: checkoutBody, status: http.StatusUnauthorized, errMsg: "unauthorized"},
		{name: "StaleCookie", cookie: "expired", body: checkoutBody, status: http.StatusUnauthorized, errMsg: "unauthorized", deleted: true},
		{name: "BadBody", cookie: "tok-7", body: `{"payment_method":1}`, status: http.StatusBadRequest, errMsg: "bad request"},
		{name: "UnknownPayment", cookie: "tok-7", body: `{"payment_method":9,"shipping_address":"x"}`, status: http.StatusBadRequest, errMsg: "bad request"},
		{name: "EmptyCart", cookie: "tok-8", body: checkoutBody, status: http.StatusBadRequest, errMsg: "cart is empty"},
		{
			name: "CartDown", cookie: "tok-7", body: checkoutBody,
			setup:  func(e *orderEnv) { e.carts.listErr = errBoom },
			status: http.StatusInternalServerError, errMsg: "upstream unavailable", details: "cart",
		},
		{
			name: "ClearFails", cookie: "tok-7", body: checkoutBody,
			setup:  func(e *orderEnv) { e.carts.clearErr = errBoom },
			status: http.StatusInternalServerError, errMsg: "upstream unavailable", details: "cart-clear",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := newOrderEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			var opts []func(*http.Request)
			if tt.cookie != "" {
				opts = append(opts, withCookie(tt.cookie))
			}

			w := do(t, env.h, http.MethodPost, "/checkout", tt.body, opts...)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.deleted, deletedCookie(w))

			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.errMsg, body.Error)
			if tt.details != "" {
				assert.Equal(t, tt.details, body.Details)
			}
			assert.NotContains(t, w.Body.String(), "boom")
			assert.Empty(t, env.store.orders)
		})
	}
}

func TestCheckout_ClearFailureKeepsCart(t *testing.T) {
	env := newOrderEnv(t)
	env.carts.clearErr = errBoom

	w := do(t, env.h, http.MethodPost, "/checkout", checkoutBody, withCookie("tok-7"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, env.carts.lines["tok-7"], 2)
	assert.Empty(t, env.store.orders)
}

func TestOrders_AccessControl(t *testing.T) {
	env := newOrderEnv(t)
	require.Equal(t, http.StatusOK, do(t, env.h, http.MethodPost, "/checkout", checkoutBody, withCookie("tok-7")).Code)

	w := do(t, env.h, http.MethodGet, "/orders", "", withCookie("tok-7"))
	require.Equal(t, http.StatusOK, w.Code)
	var list []orderJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusUnauthorized, do(t, env.h, http.MethodGet, "/orders", "").Code)
	w = do(t, env.h, http.MethodGet, "/orders", "", withCookie("stale"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, deletedCookie(w))

	assert.Equal(t, http.StatusForbidden, do(t, env.h, http.MethodGet, "/order/1", "", withCookie("tok-8")).Code)
	assert.Equal(t, http.StatusNotFound, do(t, env.h, http.MethodGet, "/order/99", "", withCookie("tok-7")).Code)
	assert.Equal(t, http.StatusForbidden, do(t, env.h, http.MethodPost, "/order/cancel/1", "", withCookie("tok-8")).Code)

	w = do(t, env.h, http.MethodPost, "/order/cancel/1", "", withCookie("tok-7"))
	require.Equal(t, http.StatusOK, w.Code)
	var o orderJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "cancelled", o.Status)
	assert.Equal(t, order.StatusCancelled, env.store.orders[1].Status)

	assert.Equal(t, http.StatusNotFound, do(t, env.h, http.MethodPost, "/order/cancel/99", "", withCookie("tok-7")).Code)
}
