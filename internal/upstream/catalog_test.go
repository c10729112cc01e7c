package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogGetByIDs(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/books", r.URL.Path)
		assert.Equal(t, "1,2,3", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`[
			{"id":1,"title":"Dune","author":"Herbert","genre_id":2,"genre":"Sci-Fi","year":1965,"price":10.5},
			{"id":3,"title":"Emma","author":"Austen","price":"5.00","description":null}
		]`))
	}))
	defer srv.Close()

	c, err := NewCatalog(srv.URL, Options{})
	require.NoError(t, err)

	books, err := c.GetByIDs(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, 1965, books[0].Year)
	assert.Equal(t, "10.5", books[0].Price.String())
	assert.Equal(t, "5", books[1].Price.String())

	books, err = c.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Equal(t, 1, calls)
}

func TestCatalogGetByIDs_Errors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "BadRequest", status: http.StatusBadRequest, body: `{"error":"bad ids"}`},
		{name: "NoPrice", status: http.StatusOK, body: `[{"id":1,"title":"x"}]`},
		{name: "NotArray", status: http.StatusOK, body: `{}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewCatalog(srv.URL, Options{})
			require.NoError(t, err)
			_, err = c.GetByIDs(context.Background(), []int64{1})
			var ue *UnavailableError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, "catalog", ue.Service)
		})
	}
}

func TestNewCatalog_BadURL(t *testing.T) {
	_, err := NewCatalog("ftp://catalog", Options{})
	require.Error(t, err)
}
