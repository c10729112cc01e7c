package upstream

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/session"
)

// IdempotencyKeyHeader carries the checkout key on cart clear and restore.
const IdempotencyKeyHeader = "Idempotency-Key"

// DefaultCookieName is the session cookie forwarded to the cart API.
const DefaultCookieName = "auth_token"

// Identity talks to the identity service: Profile Lookup and the cart API.
type Identity struct {
	profiles *client
	carts    *client
	cookie   string
}

var (
	_ session.ProfileLookup = (*Identity)(nil)
	_ order.CartRemote      = (*Identity)(nil)
)

// NewIdentity creates an Identity client for baseURL. Profile Lookup and the
// cart API trip independent breakers.
func NewIdentity(baseURL, cookieName string, opts Options) (*Identity, error) {
	profiles, err := newClient("identity", baseURL, opts)
	if err != nil {
		return nil, err
	}
	carts, err := newClient("cart", baseURL, opts)
	if err != nil {
		return nil, err
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Identity{profiles: profiles, carts: carts, cookie: cookieName}, nil
}

// LookupProfile calls GET /users/{id} with the token as bearer credential.
// 401, 403 and 404 mean the identity service rejected the session.
func (i *Identity) LookupProfile(ctx context.Context, token string, userID int64) (*session.Profile, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	r, err := i.profiles.call(ctx, http.MethodGet, "/users/"+strconv.FormatInt(userID, 10), nil, h)
	if err != nil {
		return nil, err
	}
	switch r.status {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, session.ErrProfileNotFound
	default:
		return nil, i.profiles.unexpected(r)
	}

	p, err := decodeProfile(r.body)
	if err != nil {
		return nil, i.profiles.malformed(r, err)
	}
	if p.ID != userID {
		return nil, i.profiles.malformed(r, errors.Errorf("profile id %d does not match user %d", p.ID, userID))
	}
	return p, nil
}

func (i *Identity) cartHeader(token, key string) http.Header {
	h := http.Header{}
	h.Set("Cookie", (&http.Cookie{Name: i.cookie, Value: token}).String())
	if key != "" {
		h.Set(IdempotencyKeyHeader, key)
	}
	return h
}

// ListCart calls GET /api/cart.
func (i *Identity) ListCart(ctx context.Context, token string) ([]cart.Line, error) {
	r, err := i.carts.call(ctx, http.MethodGet, "/api/cart", nil, i.cartHeader(token, ""))
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, i.carts.unexpected(r)
	}
	lines, err := decodeCartLines(r.body)
	if err != nil {
		return nil, i.carts.malformed(r, err)
	}
	return lines, nil
}

// ClearCart calls DELETE /api/cart/clear with key as Idempotency-Key.
func (i *Identity) ClearCart(ctx context.Context, token, key string) error {
	r, err := i.carts.call(ctx, http.MethodDelete, "/api/cart/clear", nil, i.cartHeader(token, key))
	if err != nil {
		return err
	}
	if r.status != http.StatusOK && r.status != http.StatusNoContent {
		return i.carts.unexpected(r)
	}
	return nil
}

// RestoreCart calls POST /api/cart/restore with key as Idempotency-Key.
func (i *Identity) RestoreCart(ctx context.Context, token, key string) error {
	r, err := i.carts.call(ctx, http.MethodPost, "/api/cart/restore", nil, i.cartHeader(token, key))
	if err != nil {
		return err
	}
	if r.status != http.StatusOK && r.status != http.StatusNoContent {
		return i.carts.unexpected(r)
	}
	return nil
}
