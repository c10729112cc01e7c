package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

// Verifier resolves session tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) session.Result
}

// Cookies describes the session cookie.
type Cookies struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// DefaultCookies are used when a Cookies field is left zero.
var DefaultCookies = Cookies{Name: "auth_token", MaxAge: session.DefaultTTL}

func (c Cookies) withDefaults() Cookies {
	if c.Name == "" {
		c.Name = DefaultCookies.Name
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultCookies.MaxAge
	}
	return c
}

func (c Cookies) token(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c Cookies) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticate resolves the session cookie of every request and stores the
// result in the context. A token that does not verify is deleted from the
// client.
func Authenticate(v Verifier, cookies Cookies) httpmiddleware.Middleware {
	cookies = cookies.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := v.Verify(r.Context(), cookies.token(r))
			if res.Stale() {
				cookies.clear(w)
			}
			next.ServeHTTP(w, r.WithContext(session.WithResult(r.Context(), res)))
		})
	}
}

// RequireUser rejects anonymous callers with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Caller.IsAuthenticated() {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) session.Caller {
	return session.FromContext(r.Context()).Caller
}

// currentUser is the profile of the caller, nil for anonymous ones.
func currentUser(r *http.Request) *session.Profile {
	return caller(r).Profile
}
