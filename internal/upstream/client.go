// Package upstream holds HTTP adapters for the services a service depends on.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Defaults for Options.
const (
	DefaultTimeout          = 3 * time.Second
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 10 * time.Second

	maxBodySize = 1 << 20
)

// UnavailableError reports that a collaborator could not serve a request:
// a transport failure, timeout, open breaker, unexpected status or a payload
// that does not match the expected schema.
type UnavailableError struct {
	Service string
	// Status is the HTTP status, zero when no response was read.
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Service, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	default:
		return e.Service + ": unavailable"
	}
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Options configure a client.
type Options struct {
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Transport is the base transport, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	return o
}

// response is a fully read reply.
type response struct {
	status int
	body   []byte
}

// serverError marks 5xx replies so the breaker counts them.
type serverError struct{ resp *response }

func (e *serverError) Error() string { return fmt.Sprintf("status %d", e.resp.status) }

// client is the transport shared by the adapters.
type client struct {
	service string
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
}

func newClient(service, baseURL string, opts Options) (*client, error) {
	opts = opts.withDefaults()
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s url", service)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("%s url %q: scheme must be http or https", service, baseURL)
	}

	threshold := opts.FailureThreshold
	return &client{
		service: service,
		base:    u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport),
		},
		breaker: gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:    service,
			Timeout: opts.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
		}),
	}, nil
}

// call performs one request. 4xx replies are returned to the caller as
// responses; transport errors, 5xx and an open breaker become
// *UnavailableError.
func (c *client) call(ctx context.Context, method, path string, query url.Values, header http.Header) (*response, error) {
	u := *c.base
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = res.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		if err != nil {
			return nil, errors.Wrap(err, "read body")
		}
		r := &response{status: res.StatusCode, body: body}
		if res.StatusCode >= 500 {
			return nil, &serverError{resp: r}
		}
		return r, nil
	})
	if err != nil {
		var se *serverError
		if errors.As(err, &se) {
			return nil, &UnavailableError{Service: c.service, Status: se.resp.status}
		}
		return nil, &UnavailableError{Service: c.service, Err: err}
	}
	return resp, nil
}

// unexpected wraps a reply the adapter has no mapping for.
func (c *client) unexpected(r *response) error {
	return &UnavailableError{Service: c.service, Status: r.status, Err: errors.New("unexpected status")}
}

// malformed wraps a payload decoding failure.
func (c *client) malformed(r *response, err error) error {
	return &UnavailableError{Service: c.service, Status: r.status, Err: errors.Wrap(err, "malformed payload")}
}
