package session

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of an issued session token.
const DefaultTTL = 24 * time.Hour

var (
	// ErrTokenExpired signals a well-signed token past its expiry.
	ErrTokenExpired = errors.New("session: token expired")
	// ErrTokenInvalid signals a malformed token, a bad signature or bad claims.
	ErrTokenInvalid = errors.New("session: token invalid")
)

// Claims is the payload carried by a session token.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens issues and parses HS256 session tokens signed with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token codec. A non-positive ttl falls back to DefaultTTL.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime given to issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for userID and returns it with its expiry.
func (t *Tokens) Issue(userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.Errorf("issue token: invalid user id %d", userID)
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Parse validates the signature and expiry of token locally and returns the
// user id it was issued for.
func (t *Tokens) Parse(token string) (int64, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return 0, ErrTokenExpired
	default:
		return 0, errors.Wrap(ErrTokenInvalid, err.Error())
	}
	if claims.UserID <= 0 {
		return 0, errors.Wrap(ErrTokenInvalid, "missing user_id claim")
	}
	return claims.UserID, nil
}
