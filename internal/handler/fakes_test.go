package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

var testBooks = []book.Book{
	{ID: 1, Title: "Dune", Author: "Frank Herbert", Price: decimal.RequireFromString("10.00")},
	{ID: 2, Title: "Emma", Author: "Jane Austen", Price: decimal.RequireFromString("5.00")},
}

type fakeBooks struct {
	books []book.Book
	err   error
}

func (f *fakeBooks) List(_ context.Context, key book.SortKey) ([]book.Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]book.Book(nil), f.books...)
	if key == book.SortByPrice {
		sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	}
	return out, nil
}

func (f *fakeBooks) Search(ctx context.Context, q string, key book.SortKey) ([]book.Book, error) {
	all, err := f.List(ctx, key)
	if err != nil {
		return nil, err
	}
	var out []book.Book
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Title+" "+b.Author), strings.ToLower(q)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBooks) GetByID(_ context.Context, id int64) (*book.Book, error) {
	for _, b := range f.books {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, book.ErrNotFound
}

func (f *fakeBooks) GetByIDs(_ context.Context, ids []int64) ([]book.Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := book.Index(f.books)
	out := []book.Book{}
	for _, id := range ids {
		if b, ok := idx[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBooks) Genres(context.Context) ([]book.Genre, error) {
	return []book.Genre{{ID: 1, Name: "Novel"}}, nil
}

// tokenVerifier authenticates "tok-<n>" style tokens from a fixed table.
type tokenVerifier struct {
	known map[string]int64
}

func (v *tokenVerifier) Verify(_ context.Context, token string) session.Result {
	if token == "" {
		return session.Result{Caller: session.Anonymous, Outcome: session.OutcomeNoToken}
	}
	id, ok := v.known[token]
	if !ok {
		return session.Result{Caller: session.Anonymous, Token: token, Outcome: session.OutcomeInvalidToken}
	}
	return session.Result{
		Caller:  session.Authenticated(id, &session.Profile{ID: id, Username: "reader"}),
		Token:   token,
		Outcome: session.OutcomeAuthenticated,
	}
}

type memUsers struct {
	mu    sync.Mutex
	users []user.User
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Email == u.Email {
			return &user.DuplicateError{Field: "email"}
		}
	}
	u.ID = int64(len(m.users) + 1)
	m.users = append(m.users, *u)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

var errBoom = errors.New("boom")

func newRouter(v Verifier, mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	if v != nil {
		r.Use(Authenticate(v, Cookies{}))
	}
	mount(r)
	return httpmiddleware.Wrap(r, httpmiddleware.Recovery())
}

func do(t *testing.T, h http.Handler, method, target, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func withCookie(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	}
}

func withHeader(k, v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

// deletedCookie reports whether the response deletes the session cookie.
func deletedCookie(w *httptest.ResponseRecorder) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth_token" && c.MaxAge < 0 {
			return true
		}
	}
	return false
}
