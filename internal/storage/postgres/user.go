package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/user"
)

const (
	insertUserSQL = `INSERT INTO users (full_name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	selectUserSQL = `SELECT id, full_name, email, phone, password_hash, created_at FROM users`
)

// uniqueFields maps unique constraint names to registration fields.
var uniqueFields = map[string]string{
	"users_full_name_key": "full_name",
	"users_email_key":     "email",
	"users_phone_key":     "phone",
}

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts u and fills in ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, insertUserSQL, u.FullName, u.Email, u.Phone, u.PasswordHash).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if pgErr, ok := pgError(err, codeUniqueViolation); ok {
			field, known := uniqueFields[pgErr.ConstraintName]
			if !known {
				field = pgErr.ConstraintName
			}
			return &user.DuplicateError{Field: field}
		}
		return errors.Wrap(err, "create user")
	}
	return nil
}

// GetByID returns the user with id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, selectUserSQL+` WHERE id = $1`, id)
}

// GetByEmail returns the user registered with email. Emails are stored
// lowercased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, selectUserSQL+` WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*user.User, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	u, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (user.User, error) {
		var u user.User
		err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}
