package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/bookstore/internal/domain/session"
)

const minPasswordLen = 6

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

// Session is an issued session token with its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

// Service implements registration, login and profile lookup.
type Service struct {
	repo   Repository
	tokens *session.Tokens
	cost   int

	// dummyHash is compared against when the email is unknown so that both
	// login failures take the same time.
	dummyHash []byte
}

// NewService creates a user Service. cost is the bcrypt cost; zero selects
// bcrypt.DefaultCost.
func NewService(repo Repository, tokens *session.Tokens, cost int) (*Service, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy hash")
	}
	return &Service{repo: repo, tokens: tokens, cost: cost, dummyHash: dummy}, nil
}

// Register validates req, hashes the password and stores the account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	switch {
	case req.FullName == "":
		return nil, &ValidationError{Field: "full_name", Reason: "required"}
	case req.Email == "":
		return nil, &ValidationError{Field: "email", Reason: "required"}
	case req.Phone == "":
		return nil, &ValidationError{Field: "phone", Reason: "required"}
	case len(req.Password) < minPasswordLen:
		return nil, &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, &ValidationError{Field: "email", Reason: "malformed"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user by email")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Profile returns the public profile of the user with id.
func (s *Service) Profile(ctx context.Context, id int64) (*session.Profile, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Profile(), nil
}

// LookupProfile resolves profiles for Session Verification inside the
// identity service itself, where the user store is local.
func (s *Service) LookupProfile(ctx context.Context, _ string, userID int64) (*session.Profile, error) {
	p, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, session.ErrProfileNotFound
	}
	return p, err
}
