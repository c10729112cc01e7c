package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/session"
)

// IdempotencyKeyHeader names the key of a restorable cart clear.
const IdempotencyKeyHeader = "Idempotency-Key"

// Cart serves the signed-in user's cart.
type Cart struct {
	carts *cart.Service
}

// NewCart creates a Cart handler.
func NewCart(carts *cart.Service) *Cart {
	return &Cart{carts: carts}
}

// Mount registers the cart routes. r must run Authenticate.
func (h *Cart) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/cart", h.page)
		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", h.list)
			r.Post("/items", h.add)
			r.Post("/items/{book_id}/inc", h.increment)
			r.Post("/items/{book_id}/dec", h.decrement)
			r.Delete("/items/{book_id}", h.remove)
			r.Delete("/clear", h.clear)
			r.Post("/restore", h.restore)
		})
	})
}

func (h *Cart) list(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Lines(r.Context(), caller(r).UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCartLines(lines))
}

type cartPage struct {
	CurrentUser *session.Profile `json:"current_user"`
	Lines       []cartLineJSON   `json:"lines"`
	Total       string           `json:"total"`
}

func (h *Cart) page(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.View(r.Context(), caller(r).UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cartPage{
		CurrentUser: currentUser(r),
		Lines:       toCartLines(v.Lines),
		Total:       v.Total.StringFixed(2),
	})
}

type quantityJSON struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

func (h *Cart) add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID int64 `json:"book_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	err := h.carts.Add(r.Context(), caller(r).UserID, req.BookID)
	switch {
	case errors.Is(err, cart.ErrInvalidBook):
		writeError(w, r, http.StatusBadRequest, "invalid book id", "")
	case errors.Is(err, cart.ErrAlreadyInCart):
		writeError(w, r, http.StatusConflict, "book already in cart", "")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusCreated, quantityJSON{BookID: req.BookID, Quantity: 1})
	}
}

func (h *Cart) increment(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.carts.Increment)
}

func (h *Cart) decrement(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.carts.Decrement)
}

func (h *Cart) step(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, bookID int64) (int, error)) {
	bookID, ok := pathID(r, "book_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid book id", "")
		return
	}
	q, err := op(r.Context(), caller(r).UserID, bookID)
	switch {
	case errors.Is(err, cart.ErrNotInCart):
		writeError(w, r, http.StatusNotFound, "book not in cart", "")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, quantityJSON{BookID: bookID, Quantity: q})
	}
}

func (h *Cart) remove(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(r, "book_id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid book id", "")
		return
	}
	err := h.carts.Remove(r.Context(), caller(r).UserID, bookID)
	switch {
	case errors.Is(err, cart.ErrNotInCart):
		writeError(w, r, http.StatusNotFound, "book not in cart", "")
	case err != nil:
		internalError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Cart) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), caller(r).UserID, r.Header.Get(IdempotencyKeyHeader)); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Cart) restore(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		writeError(w, r, http.StatusBadRequest, IdempotencyKeyHeader+" header is required", "")
		return
	}
	n, err := h.carts.Restore(r.Context(), caller(r).UserID, key)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"restored": n})
}
