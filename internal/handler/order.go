package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

// Order serves checkout and the order history.
type Order struct {
	checkout *order.Checkout
	orders   *order.Service
	sessions Verifier
	cookies  Cookies
	limiter  *httpmiddleware.Limiter
}

// NewOrder creates an Order handler. limiter may be nil.
func NewOrder(checkout *order.Checkout, orders *order.Service, sessions Verifier, cookies Cookies, limiter *httpmiddleware.Limiter) *Order {
	return &Order{
		checkout: checkout,
		orders:   orders,
		sessions: sessions,
		cookies:  cookies.withDefaults(),
		limiter:  limiter,
	}
}

// Mount registers the order routes. Checkout verifies the session itself;
// the other routes run Authenticate.
func (h *Order) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware())
		}
		r.Post("/checkout", h.handleCheckout)
	})
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.sessions, h.cookies), RequireUser)
		r.Get("/orders", h.list)
		r.Get("/order/{id}", h.details)
		r.Post("/order/cancel/{id}", h.cancel)
	})
}

type checkoutResponse struct {
	OrderID int64     `json:"order_id"`
	Order   orderJSON `json:"order"`
}

func (h *Order) handleCheckout(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad request", err.Error())
		return
	}
	o, err := h.checkout.Run(r.Context(), h.cookies.token(r), body)
	if err != nil {
		h.checkoutError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, checkoutResponse{OrderID: o.ID, Order: toOrder(o, nil)})
}

func (h *Order) checkoutError(w http.ResponseWriter, r *http.Request, err error) {
	var e *order.Error
	if !errors.As(err, &e) {
		internalError(w, r, err)
		return
	}
	switch e.Kind {
	case order.KindUnauthorized:
		if e.StaleSession {
			h.cookies.clear(w)
		}
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "")
	case order.KindBadRequest:
		details := ""
		if e.Err != nil {
			details = e.Err.Error()
		}
		writeError(w, r, http.StatusBadRequest, "bad request", details)
	case order.KindEmptyCart:
		writeError(w, r, http.StatusBadRequest, "cart is empty", "")
	case order.KindUpstreamUnavailable:
		writeError(w, r, http.StatusInternalServerError, "upstream unavailable", e.Upstream)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error", "")
	}
}

func (h *Order) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), caller(r).UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]orderJSON, len(orders))
	for i := range orders {
		out[i] = toOrder(&orders[i], nil)
	}
	writeJSON(w, r, http.StatusOK, out)
}

type orderDetails struct {
	Order   orderJSON `json:"order"`
	Total   string    `json:"total"`
	Partial bool      `json:"partial,omitempty"`
}

func (h *Order) details(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid order id", "")
		return
	}
	d, err := h.orders.Details(r.Context(), caller(r).UserID, id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found", "")
	case errors.Is(err, order.ErrNotOwner):
		writeError(w, r, http.StatusForbidden, "forbidden", "")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, orderDetails{
			Order:   toOrder(d.Order, d.Books),
			Total:   d.Total.StringFixed(2),
			Partial: d.Partial,
		})
	}
}

func (h *Order) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid order id", "")
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found", "")
		return
	case err != nil:
		internalError(w, r, err)
		return
	case o.UserID != caller(r).UserID:
		writeError(w, r, http.StatusForbidden, "forbidden", "")
		return
	}

	if err := h.orders.Cancel(r.Context(), id); err != nil {
		internalError(w, r, err)
		return
	}
	o.Status = order.StatusCancelled
	writeJSON(w, r, http.StatusOK, toOrder(o, nil))
}
