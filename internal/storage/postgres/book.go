package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/book"
)

const (
	selectBookSQL = `SELECT b.id, b.title, b.author, b.description, COALESCE(b.genre_id, 0),
		COALESCE(g.name, ''), COALESCE(b.year, 0), b.publisher, b.price
		FROM book b LEFT JOIN genre g ON g.id = b.genre_id`

	searchBooksWhere = ` WHERE b.title ILIKE $1 OR b.author ILIKE $1`

	listGenresSQL = `SELECT id, name FROM genre ORDER BY name`
)

var _ book.Repository = (*BookRepository)(nil)

// BookRepository implements book.Repository backed by PostgreSQL.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository returns a BookRepository that uses the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

func orderBy(sort book.SortKey) string {
	switch sort {
	case book.SortByTitle:
		return ` ORDER BY lower(b.title), b.id`
	case book.SortByAuthor:
		return ` ORDER BY lower(b.author), b.id`
	case book.SortByPrice:
		return ` ORDER BY b.price, b.id`
	default:
		return ` ORDER BY b.id`
	}
}

// List returns every book in the requested order.
func (r *BookRepository) List(ctx context.Context, sort book.SortKey) ([]book.Book, error) {
	rows, err := r.pool.Query(ctx, selectBookSQL+orderBy(sort))
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	return pgx.CollectRows(rows, scanBook)
}

// Search matches query against title and author, case-insensitively.
func (r *BookRepository) Search(ctx context.Context, query string, sort book.SortKey) ([]book.Book, error) {
	rows, err := r.pool.Query(ctx, selectBookSQL+searchBooksWhere+orderBy(sort), "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, errors.Wrapf(err, "search books %q", query)
	}
	return pgx.CollectRows(rows, scanBook)
}

// GetByID returns a single book.
func (r *BookRepository) GetByID(ctx context.Context, id int64) (*book.Book, error) {
	rows, err := r.pool.Query(ctx, selectBookSQL+` WHERE b.id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get book %d", id)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBook)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, book.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get book %d", id)
	}
	return &b, nil
}

// GetByIDs returns the books among ids that exist, ordered by id.
func (r *BookRepository) GetByIDs(ctx context.Context, ids []int64) ([]book.Book, error) {
	if len(ids) == 0 {
		return []book.Book{}, nil
	}
	rows, err := r.pool.Query(ctx, selectBookSQL+` WHERE b.id = ANY($1) ORDER BY b.id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get books by ids")
	}
	return pgx.CollectRows(rows, scanBook)
}

// Genres lists all genres by name.
func (r *BookRepository) Genres(ctx context.Context) ([]book.Genre, error) {
	rows, err := r.pool.Query(ctx, listGenresSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list genres")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (book.Genre, error) {
		var g book.Genre
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
}

func scanBook(row pgx.CollectableRow) (book.Book, error) {
	var b book.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.GenreID,
		&b.Genre, &b.Year, &b.Publisher, &b.Price)
	return b, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
