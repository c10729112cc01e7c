package session

import "context"

// Profile is the public profile of a user as returned by Profile Lookup.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Caller is the resolved identity of a request: either anonymous or an
// authenticated user with its profile. The zero value is anonymous.
type Caller struct {
	UserID  int64
	Profile *Profile
}

// Anonymous is the caller of a request without a usable session.
var Anonymous = Caller{}

// Authenticated builds the caller for a verified user.
func Authenticated(userID int64, p *Profile) Caller {
	return Caller{UserID: userID, Profile: p}
}

// IsAuthenticated reports whether the caller is a verified user.
func (c Caller) IsAuthenticated() bool {
	return c.UserID > 0 && c.Profile != nil
}

// Outcome classifies how a verification ended. It is used for logging and
// metrics only; callers see just the Caller and the stale flag.
type Outcome string

// Verification outcomes.
const (
	OutcomeAuthenticated       Outcome = "authenticated"
	OutcomeNoToken             Outcome = "no_token"
	OutcomeInvalidToken        Outcome = "invalid_token"
	OutcomeExpiredToken        Outcome = "expired_token"
	OutcomeProfileRejected     Outcome = "profile_rejected"
	OutcomeIdentityUnavailable Outcome = "identity_unavailable"
)

// Result is the output of Session Verification for one request.
type Result struct {
	Caller  Caller
	Token   string
	Outcome Outcome
}

// Stale reports whether a token was presented but did not yield an
// authenticated caller. HTTP callers must delete the session cookie then.
func (r Result) Stale() bool {
	return r.Token != "" && !r.Caller.IsAuthenticated()
}

type resultKey struct{}

// WithResult stores the verification result in ctx.
func WithResult(ctx context.Context, r Result) context.Context {
	return context.WithValue(ctx, resultKey{}, r)
}

// FromContext returns the verification result stored in ctx, or an
// anonymous result when none was stored.
func FromContext(ctx context.Context) Result {
	if r, ok := ctx.Value(resultKey{}).(Result); ok {
		return r
	}
	return Result{Caller: Anonymous, Outcome: OutcomeNoToken}
}
