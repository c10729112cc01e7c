package order

import (
	"strings"
)

// Kind classifies checkout failures.
type Kind int

// Checkout failure kinds.
const (
	KindUnauthorized Kind = iota + 1
	KindBadRequest
	KindEmptyCart
	KindUpstreamUnavailable
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad request"
	case KindEmptyCart:
		return "empty cart"
	case KindUpstreamUnavailable:
		return "upstream unavailable"
	case KindInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// Upstream names used in KindUpstreamUnavailable errors.
const (
	UpstreamCart      = "cart"
	UpstreamCartClear = "cart-clear"
)

// Error is a checkout failure. It matches the sentinel values below with
// errors.Is by Kind and, when the sentinel names one, by Upstream.
type Error struct {
	Kind     Kind
	Upstream string
	// StaleSession is set on KindUnauthorized when a token was presented
	// but did not verify; HTTP callers delete the session cookie then.
	StaleSession bool
	// State is the saga state the failure happened in.
	State State
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("checkout: ")
	b.WriteString(e.Kind.String())
	if e.Upstream != "" {
		b.WriteString(" (")
		b.WriteString(e.Upstream)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Upstream == "" || t.Upstream == e.Upstream)
}

// Sentinels for errors.Is.
var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrBadRequest           = &Error{Kind: KindBadRequest}
	ErrEmptyCart            = &Error{Kind: KindEmptyCart}
	ErrUpstreamUnavailable  = &Error{Kind: KindUpstreamUnavailable}
	ErrCartUnavailable      = &Error{Kind: KindUpstreamUnavailable, Upstream: UpstreamCart}
	ErrCartClearUnavailable = &Error{Kind: KindUpstreamUnavailable, Upstream: UpstreamCartClear}
	ErrInternal             = &Error{Kind: KindInternal}
)
