package user

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/session"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// DuplicateError reports a unique field that is already registered.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

// ValidationError reports a missing or malformed registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// User is a registered account.
type User struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile returns the public part of the account.
func (u *User) Profile() *session.Profile {
	return &session.Profile{
		ID:       u.ID,
		Username: u.FullName,
		Email:    u.Email,
		Phone:    u.Phone,
	}
}

// Repository persists user accounts.
type Repository interface {
	// Create stores u and sets its ID. A taken unique field yields
	// *DuplicateError.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
