package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/db"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/storage/postgres"
)

type bookJSON struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Genre       string          `json:"genre"`
	Year        int             `json:"year"`
	Publisher   string          `json:"publisher"`
	Price       decimal.Decimal `json:"price"`
}

type options struct {
	catalogURL   string
	identityURL  string
	booksFile    string
	demoEmail    string
	demoPassword string
}

func main() {
	var opts options

	flag.StringVar(&opts.catalogURL, "catalog-database-url", "", "catalog PostgreSQL URL (or DATABASE_URL env)")
	flag.StringVar(&opts.identityURL, "identity-database-url", "", "identity PostgreSQL URL (or DATABASE_URL env)")
	flag.StringVar(&opts.booksFile, "books-file", "db/seed/books.json", "path to books JSON file, .gz for gzip")
	flag.StringVar(&opts.demoEmail, "demo-email", "reader@example.com", "email of the demo account, empty to skip")
	flag.StringVar(&opts.demoPassword, "demo-password", "", "password of the demo account (or BOOKSTORE_DEMO_PASSWORD env)")
	flag.Parse()

	fallback := os.Getenv("DATABASE_URL")
	if opts.catalogURL == "" {
		opts.catalogURL = fallback
	}
	if opts.identityURL == "" {
		opts.identityURL = fallback
	}
	if opts.catalogURL == "" || opts.identityURL == "" {
		slog.Error("database URLs are required: set --catalog-database-url and --identity-database-url, or DATABASE_URL")
		os.Exit(1)
	}
	if opts.demoPassword == "" {
		opts.demoPassword = os.Getenv("BOOKSTORE_DEMO_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	books, err := loadBooks(opts.booksFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to catalog database")
	catalog, err := connect(ctx, opts.catalogURL, db.CatalogSchema)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if err := seedBooks(ctx, catalog, books); err != nil {
		return errors.Wrap(err, "seed books")
	}

	if opts.demoEmail == "" || opts.demoPassword == "" {
		slog.Info("skipping demo account")
		return nil
	}

	slog.Info("connecting to identity database")
	identity, err := connect(ctx, opts.identityURL, db.IdentitySchema)
	if err != nil {
		return err
	}
	defer identity.Close()

	return seedDemoUser(ctx, identity, opts.demoEmail, opts.demoPassword)
}

func connect(ctx context.Context, url, schema string) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if err := postgres.Migrate(ctx, pool, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// loadBooks reads a JSON array of books, gunzipping files ending in .gz.
func loadBooks(path string) ([]bookJSON, error) {
	slog.Info("reading books file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open books file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var books []bookJSON
	if err := json.NewDecoder(r).Decode(&books); err != nil {
		return nil, errors.Wrap(err, "parse books JSON")
	}
	for i, b := range books {
		if b.Title == "" || b.Author == "" {
			return nil, errors.Errorf("book %d: title and author are required", i)
		}
		if b.Price.IsNegative() {
			return nil, errors.Errorf("book %q: negative price", b.Title)
		}
	}
	return books, nil
}

// seedBooks inserts books that are not present yet, matching on title and
// author, creating genres as needed.
func seedBooks(ctx context.Context, pool *pgxpool.Pool, books []bookJSON) error {
	slog.Info("upserting books", slog.Int("count", len(books)))

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		genres := make(map[string]int64)
		for _, b := range books {
			var genreID *int64
			if b.Genre != "" {
				id, ok := genres[b.Genre]
				if !ok {
					if err := tx.QueryRow(ctx, `
						INSERT INTO genre (name) VALUES ($1)
						ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
						RETURNING id`, b.Genre).Scan(&id); err != nil {
						return errors.Wrapf(err, "upsert genre %s", b.Genre)
					}
					genres[b.Genre] = id
				}
				genreID = &id
			}

			tag, err := tx.Exec(ctx, `
				INSERT INTO book (title, author, description, genre_id, year, publisher, price)
				SELECT $1, $2, $3, $4, NULLIF($5, 0), $6, $7
				WHERE NOT EXISTS (SELECT 1 FROM book WHERE title = $1 AND author = $2)`,
				b.Title, b.Author, b.Description, genreID, b.Year, b.Publisher, b.Price)
			if err != nil {
				return errors.Wrapf(err, "insert book %q", b.Title)
			}
			if tag.RowsAffected() > 0 {
				slog.Info("inserted book", slog.String("title", b.Title), slog.String("author", b.Author))
			}
		}
		return nil
	})
}

func seedDemoUser(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	slog.Info("seeding demo account", slog.String("email", email))

	users, err := user.NewService(postgres.NewUserRepository(pool), nil, 0)
	if err != nil {
		return err
	}
	_, err = users.Register(ctx, user.RegisterRequest{
		FullName: "Demo Reader",
		Email:    email,
		Phone:    "+10000000000",
		Password: password,
	})
	var dup *user.DuplicateError
	if errors.As(err, &dup) {
		slog.Info("demo account exists", slog.String("field", dup.Field))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "register demo account")
	}
	return nil
}
