package cart

import (
	"context"
	"sort"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore/internal/domain/book"
)

// --- Fakes ---

type memRepo struct {
	lines   map[int64]map[int64]int
	listErr error
}

func newMemRepo() *memRepo {
	return &memRepo{lines: make(map[int64]map[int64]int)}
}

func (m *memRepo) List(_ context.Context, userID int64) ([]Line, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Line, 0, len(m.lines[userID]))
	for id, q := range m.lines[userID] {
		out = append(out, Line{BookID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (m *memRepo) Add(_ context.Context, userID, bookID int64) error {
	if m.lines[userID] == nil {
		m.lines[userID] = make(map[int64]int)
	}
	if _, ok := m.lines[userID][bookID]; ok {
		return ErrAlreadyInCart
	}
	m.lines[userID][bookID] = 1
	return nil
}

func (m *memRepo) Remove(_ context.Context, userID, bookID int64) error {
	if _, ok := m.lines[userID][bookID]; !ok {
		return ErrNotInCart
	}
	delete(m.lines[userID], bookID)
	return nil
}

func (m *memRepo) Increment(_ context.Context, userID, bookID int64) (int, error) {
	q, ok := m.lines[userID][bookID]
	if !ok {
		return 0, ErrNotInCart
	}
	m.lines[userID][bookID] = q + 1
	return q + 1, nil
}

func (m *memRepo) Decrement(_ context.Context, userID, bookID int64) (int, error) {
	q, ok := m.lines[userID][bookID]
	if !ok {
		return 0, ErrNotInCart
	}
	if q <= 1 {
		delete(m.lines[userID], bookID)
		return 0, nil
	}
	m.lines[userID][bookID] = q - 1
	return q - 1, nil
}

func (m *memRepo) Clear(_ context.Context, userID int64, _ string) error {
	delete(m.lines, userID)
	return nil
}

func (m *memRepo) Restore(_ context.Context, _ int64, _ string) (int, error) {
	return 0, nil
}

type fakeCatalog struct {
	books []book.Book
	err   error
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []int64) ([]book.Book, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []book.Book
	for _, b := range f.books {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func testBooks() []book.Book {
	return []book.Book{
		{ID: 7, Title: "Dune", Price: decimal.RequireFromString("10.00")},
		{ID: 9, Title: "Solaris", Price: decimal.RequireFromString("5.00")},
	}
}

// --- Tests ---

func TestView_Total(t *testing.T) {
	repo := newMemRepo()
	repo.lines[42] = map[int64]int{7: 2, 9: 1}
	svc := NewService(repo, &fakeCatalog{books: testBooks()})

	view, err := svc.View(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "Dune", view.Lines[0].Book.Title)
	assert.True(t, decimal.RequireFromString("25.00").Equal(view.Total))
}

func TestView_MissingBookSkipped(t *testing.T) {
	repo := newMemRepo()
	repo.lines[42] = map[int64]int{7: 1, 404: 2}
	svc := NewService(repo, &fakeCatalog{books: testBooks()})

	view, err := svc.View(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Nil(t, view.Lines[1].Book)
	assert.True(t, decimal.RequireFromString("10.00").Equal(view.Total))
}

func TestLines_CatalogDown(t *testing.T) {
	repo := newMemRepo()
	repo.lines[42] = map[int64]int{7: 1}
	svc := NewService(repo, &fakeCatalog{err: errors.New("catalog down")})

	lines, err := svc.Lines(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].Book)
}

func TestLines_RepoError(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errors.New("redis down")
	svc := NewService(repo, &fakeCatalog{})

	_, err := svc.Lines(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list cart")
}

func TestAdd(t *testing.T) {
	svc := NewService(newMemRepo(), &fakeCatalog{})
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 1, 7))
	require.ErrorIs(t, svc.Add(ctx, 1, 7), ErrAlreadyInCart)
	require.ErrorIs(t, svc.Add(ctx, 1, 0), ErrInvalidBook)
}

func TestDecrementRemovesLastCopy(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, &fakeCatalog{})
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, 1, 7))

	q, err := svc.Increment(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, q)

	q, err = svc.Decrement(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, q)

	q, err = svc.Decrement(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, q)

	lines, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClear_Idempotent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, &fakeCatalog{})
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, 1, 7))

	require.NoError(t, svc.Clear(ctx, 1, ""))
	require.NoError(t, svc.Clear(ctx, 1, ""))

	lines, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
