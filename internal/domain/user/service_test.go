package user

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/bookstore/internal/domain/session"
)

// --- Fakes ---

type memRepo struct {
	byID   map[int64]*User
	nextID int64
	getErr error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[int64]*User)}
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return &DuplicateError{Field: "email"}
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func newTestService(t *testing.T, repo Repository) (*Service, *session.Tokens) {
	t.Helper()
	tokens := session.NewTokens([]byte("test-secret"), time.Hour)
	svc, err := NewService(repo, tokens, bcrypt.MinCost)
	require.NoError(t, err)
	return svc, tokens
}

func validRequest() RegisterRequest {
	return RegisterRequest{
		FullName: "Ann Reader",
		Email:    " Ann@Example.com ",
		Phone:    "+100000",
		Password: "secret123",
	}
}

// --- Tests ---

func TestRegisterAndLogin(t *testing.T) {
	svc, tokens := newTestService(t, newMemRepo())
	ctx := context.Background()

	u, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotEqual(t, "secret123", u.PasswordHash)

	s, err := svc.Login(ctx, "ANN@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.User.ID)

	userID, err := tokens.Parse(s.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t, newMemRepo())

	for field, mutate := range map[string]func(*RegisterRequest){
		"full_name": func(r *RegisterRequest) { r.FullName = " " },
		"email":     func(r *RegisterRequest) { r.Email = "not-an-email" },
		"phone":     func(r *RegisterRequest) { r.Phone = "" },
		"password":  func(r *RegisterRequest) { r.Password = "123" },
	} {
		req := validRequest()
		mutate(&req)

		_, err := svc.Register(context.Background(), req)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, field)
		assert.Equal(t, field, vErr.Field)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _ := newTestService(t, newMemRepo())
	ctx := context.Background()
	_, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRequest())

	var dErr *DuplicateError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "email", dErr.Field)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newTestService(t, newMemRepo())
	ctx := context.Background()
	_, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _ := newTestService(t, newMemRepo())

	_, err := svc.Login(context.Background(), "nobody@example.com", "secret123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_RepoError(t *testing.T) {
	repo := newMemRepo()
	repo.getErr = errors.New("db down")
	svc, _ := newTestService(t, repo)

	_, err := svc.Login(context.Background(), "ann@example.com", "secret123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLookupProfile(t *testing.T) {
	svc, _ := newTestService(t, newMemRepo())
	ctx := context.Background()
	u, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)

	p, err := svc.LookupProfile(ctx, "ignored", u.ID)
	require.NoError(t, err)
	assert.Equal(t, &session.Profile{ID: u.ID, Username: "Ann Reader", Email: "ann@example.com", Phone: "+100000"}, p)

	_, err = svc.LookupProfile(ctx, "ignored", 999)
	require.ErrorIs(t, err, session.ErrProfileNotFound)
}
