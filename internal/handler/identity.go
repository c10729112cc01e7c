package handler

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

// Identity serves registration, login and profiles.
type Identity struct {
	users   *user.Service
	tokens  *session.Tokens
	cookies Cookies
	limiter *httpmiddleware.Limiter
}

// NewIdentity creates an Identity handler. limiter may be nil.
func NewIdentity(users *user.Service, tokens *session.Tokens, cookies Cookies, limiter *httpmiddleware.Limiter) *Identity {
	return &Identity{users: users, tokens: tokens, cookies: cookies.withDefaults(), limiter: limiter}
}

// Mount registers the identity routes. r must run Authenticate.
func (h *Identity) Mount(r chi.Router) {
	r.Post("/register", h.register)
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Middleware())
		}
		r.Post("/login", h.login)
	})
	r.Post("/logout", h.logout)
	r.With(RequireUser).Get("/profile", h.profile)
	r.Get("/users/{id}", h.lookup)
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type userJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (h *Identity) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	u, err := h.users.Register(r.Context(), user.RegisterRequest{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	var (
		dup *user.DuplicateError
		inv *user.ValidationError
	)
	switch {
	case errors.As(err, &dup):
		writeError(w, r, http.StatusConflict, "already registered", dup.Field)
	case errors.As(err, &inv):
		writeError(w, r, http.StatusBadRequest, "invalid request", inv.Error())
	case err != nil:
		internalError(w, r, err)
	default:
		p := u.Profile()
		writeJSON(w, r, http.StatusCreated, userJSON(*p))
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// readLogin accepts a JSON body or an HTML form.
func readLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			return req, errors.Wrap(err, "parse form")
		}
		req.Email, req.Password = r.PostForm.Get("email"), r.PostForm.Get("password")
	} else if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return req, errors.New("email and password are required")
	}
	return req, nil
}

func (h *Identity) login(w http.ResponseWriter, r *http.Request) {
	req, err := readLogin(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	s, err := h.users.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		zctx.From(r.Context()).Info("Login rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid email or password", "")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	h.cookies.set(w, s.Token)
	zctx.From(r.Context()).Info("Logged in", zap.Int64("user_id", s.User.ID))
	writeJSON(w, r, http.StatusOK, struct {
		User      userJSON `json:"user"`
		ExpiresAt string   `json:"expires_at"`
	}{
		User:      userJSON(*s.User.Profile()),
		ExpiresAt: s.ExpiresAt.UTC().Format(http.TimeFormat),
	})
}

func (h *Identity) logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Identity) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, userJSON(*currentUser(r)))
}

// lookup is Profile Lookup for other services. The bearer token must belong
// to the requested user.
func (h *Identity) lookup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid user id", "")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, r, http.StatusUnauthorized, "bearer token required", "")
		return
	}
	userID, err := h.tokens.Parse(token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token", "")
		return
	}
	if userID != id {
		writeError(w, r, http.StatusForbidden, "forbidden", "")
		return
	}

	p, err := h.users.Profile(r.Context(), id)
	switch {
	case errors.Is(err, user.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found", "")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, userJSON(*p))
	}
}
