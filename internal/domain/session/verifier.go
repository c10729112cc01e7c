package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// DefaultLookupTimeout bounds a single Profile Lookup round trip.
const DefaultLookupTimeout = 3 * time.Second

// ErrProfileNotFound is returned by a ProfileLookup when the identity service
// answers but does not recognise the user or the credential.
var ErrProfileNotFound = errors.New("session: profile not found")

// ProfileLookup resolves a user id to its public profile. The original token
// is forwarded as the delegated credential.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, token string, userID int64) (*Profile, error)
}

// ProfileLookupFunc adapts a function to ProfileLookup.
type ProfileLookupFunc func(ctx context.Context, token string, userID int64) (*Profile, error)

// LookupProfile implements ProfileLookup.
func (f ProfileLookupFunc) LookupProfile(ctx context.Context, token string, userID int64) (*Profile, error) {
	return f(ctx, token, userID)
}

// Verifier turns a bearer token into a Caller. It never fails: every problem
// degrades to an anonymous caller.
type Verifier struct {
	tokens   *Tokens
	profiles ProfileLookup
	timeout  time.Duration
	meter    metric.Meter
	counter  metric.Int64Counter
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithLookupTimeout overrides the Profile Lookup timeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithMeter records verification outcomes on the given meter.
func WithMeter(m metric.Meter) Option {
	return func(v *Verifier) {
		if m != nil {
			v.meter = m
		}
	}
}

// NewVerifier creates a Verifier that validates tokens locally and resolves
// profiles through profiles.
func NewVerifier(tokens *Tokens, profiles ProfileLookup, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		tokens:   tokens,
		profiles: profiles,
		timeout:  DefaultLookupTimeout,
		meter:    noop.NewMeterProvider().Meter("session"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	counter, err := v.meter.Int64Counter("session.verifications",
		metric.WithDescription("Session verifications by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create verification counter")
	}
	v.counter = counter

	return v, nil
}

// Verify resolves token. An empty token yields an anonymous result that is
// not stale. There is no cache: every present token costs one Profile Lookup.
func (v *Verifier) Verify(ctx context.Context, token string) Result {
	res := v.verify(ctx, token)
	v.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	return res
}

func (v *Verifier) verify(ctx context.Context, token string) Result {
	lg := zctx.From(ctx)
	if token == "" {
		return Result{Caller: Anonymous, Outcome: OutcomeNoToken}
	}

	userID, err := v.tokens.Parse(token)
	if err != nil {
		outcome := OutcomeInvalidToken
		if errors.Is(err, ErrTokenExpired) {
			outcome = OutcomeExpiredToken
		}
		lg.Debug("Session token rejected", zap.String("outcome", string(outcome)), zap.Error(err))
		return Result{Caller: Anonymous, Token: token, Outcome: outcome}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	profile, err := v.profiles.LookupProfile(lookupCtx, token, userID)
	switch {
	case err == nil && profile != nil:
		return Result{Caller: Authenticated(userID, profile), Token: token, Outcome: OutcomeAuthenticated}
	case err == nil, errors.Is(err, ErrProfileNotFound):
		lg.Info("Profile lookup rejected session", zap.Int64("user_id", userID))
		return Result{Caller: Anonymous, Token: token, Outcome: OutcomeProfileRejected}
	default:
		lg.Warn("Identity service unavailable", zap.Int64("user_id", userID), zap.Error(err))
		return Result{Caller: Anonymous, Token: token, Outcome: OutcomeIdentityUnavailable}
	}
}
