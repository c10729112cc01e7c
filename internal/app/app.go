// Package app wires the bookstore services.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/handler"
	"github.com/xenking/bookstore/internal/storage/postgres"
	"github.com/xenking/bookstore/internal/upstream"
	"github.com/xenking/bookstore/pkg/health"
	"github.com/xenking/bookstore/pkg/httpmiddleware"
)

const probeInterval = 10 * time.Second

// server is the HTTP process shared by every service: a chi router with the
// health endpoints, the middleware chain, and background workers that run
// for the lifetime of the server.
type server struct {
	name    string
	lg      *zap.Logger
	cfg     *Config
	monitor *health.Monitor
	router  chi.Router
	workers []func(context.Context) error
}

func newServer(name string, lg *zap.Logger, cfg *Config) *server {
	monitor := health.New(lg)
	monitor.Register(health.Probe{
		Name:    "goroutines",
		Kind:    health.Liveness,
		Timeout: time.Second,
		Check:   health.Goroutines(10000),
	})

	r := chi.NewRouter()
	monitor.Mount(r)

	return &server{
		name:    name,
		lg:      lg.Named(name),
		cfg:     cfg,
		monitor: monitor,
		router:  r,
	}
}

// postgres opens the pool, applies schema, and adds a readiness probe. The
// caller closes the pool.
func (s *server) postgres(ctx context.Context, schema string) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.Migrate(ctx, pool, schema); err != nil {
		pool.Close()
		return nil, err
	}
	s.monitor.Register(health.Probe{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Check:   health.Ping(pool),
	})
	return pool, nil
}

// limiter returns a per-client limiter whose eviction loop runs with the
// server.
func (s *server) limiter() *httpmiddleware.Limiter {
	l := httpmiddleware.NewLimiter(s.cfg.RateLimit.Max, s.cfg.RateLimit.Window, httpmiddleware.ClientIP)
	s.workers = append(s.workers, l.Run)
	return l
}

func (s *server) tokens() *session.Tokens {
	return session.NewTokens([]byte(s.cfg.Session.Secret), s.cfg.Session.TTL)
}

func (s *server) cookies() handler.Cookies {
	return handler.Cookies{
		Name:   s.cfg.Session.CookieName,
		Secure: s.cfg.Session.Secure,
		MaxAge: s.cfg.Session.TTL,
	}
}

func (s *server) upstreamOptions() upstream.Options {
	return upstream.Options{
		Timeout:          s.cfg.Upstream.Timeout,
		FailureThreshold: s.cfg.Upstream.FailureThreshold,
		OpenTimeout:      s.cfg.Upstream.OpenTimeout,
	}
}

func (s *server) handler() http.Handler {
	return httpmiddleware.Wrap(s.router,
		httpmiddleware.InjectLogger(s.lg),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:     s.cfg.CORS.Origins,
			Credentials: s.cfg.CORS.AllowCredentials,
			Headers: []string{
				"Content-Type", "Authorization",
				httpmiddleware.RequestIDHeader, handler.IdempotencyKeyHeader,
			},
			MaxAge: 24 * time.Hour,
		}),
		httpmiddleware.Instrument(s.name),
	)
}

// run serves until ctx is done, then drains: readiness goes false, the
// server waits ReadinessDelay and shuts down within ShutdownTimeout.
func (s *server) run(ctx context.Context) error {
	srv := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              s.cfg.Addr,
		Handler:           s.handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.monitor.Run(gctx, probeInterval)
	})
	for _, w := range s.workers {
		g.Go(func() error { return w(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		s.monitor.SetReady(false)
		s.lg.Info("Readiness set to false, draining", zap.Duration("delay", s.cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(s.cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Graceful.ShutdownTimeout)
		defer cancel()

		s.lg.Info("Shutting down server", zap.Duration("timeout", s.cfg.Graceful.ShutdownTimeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		s.monitor.SetReady(true)
		s.lg.Info("Server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
