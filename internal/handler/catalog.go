package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/session"
)

// maxBatchIDs bounds a Catalog Batch Lookup.
const maxBatchIDs = 200

// Catalog serves the book catalog.
type Catalog struct {
	books book.Repository
}

// NewCatalog creates a Catalog handler.
func NewCatalog(books book.Repository) *Catalog {
	return &Catalog{books: books}
}

// Mount registers the catalog routes. r must run Authenticate.
func (h *Catalog) Mount(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/search", h.search)
	r.Get("/book/{id}", h.book)
	r.Get("/books", h.batch)
	r.Get("/genres", h.genres)
}

type homePage struct {
	CurrentUser *session.Profile `json:"current_user"`
	Books       []bookJSON       `json:"books"`
	SortBy      string           `json:"sort_by"`
	Query       string           `json:"query,omitempty"`
}

func (h *Catalog) sortKey(w http.ResponseWriter, r *http.Request) (book.SortKey, bool) {
	key, err := book.ParseSortKey(r.URL.Query().Get("sort_by"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid sort_by", err.Error())
		return 0, false
	}
	return key, true
}

func (h *Catalog) home(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sortKey(w, r)
	if !ok {
		return
	}
	books, err := h.books.List(r.Context(), key)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, homePage{
		CurrentUser: currentUser(r),
		Books:       toBooks(books),
		SortBy:      key.String(),
	})
}

func (h *Catalog) search(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sortKey(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		books []book.Book
		err   error
	)
	if q == "" {
		books, err = h.books.List(r.Context(), key)
	} else {
		books, err = h.books.Search(r.Context(), q, key)
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, homePage{
		CurrentUser: currentUser(r),
		Books:       toBooks(books),
		SortBy:      key.String(),
		Query:       q,
	})
}

func (h *Catalog) book(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid book id", "")
		return
	}
	b, err := h.books.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, book.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "book not found", "")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, toBook(*b))
	}
}

// parseIDs reads a comma-separated list of positive ids.
func parseIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("ids is required")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchIDs {
		return nil, errors.Errorf("at most %d ids", maxBatchIDs)
	}
	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid id %q", p)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Catalog) batch(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid ids", err.Error())
		return
	}
	books, err := h.books.GetByIDs(r.Context(), ids)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBooks(books))
}

type genreJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *Catalog) genres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.books.Genres(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]genreJSON, len(genres))
	for i, g := range genres {
		out[i] = genreJSON{ID: g.ID, Name: g.Name}
	}
	writeJSON(w, r, http.StatusOK, out)
}
