package app

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/db"
	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/handler"
	"github.com/xenking/bookstore/internal/storage/postgres"
	"github.com/xenking/bookstore/internal/upstream"
)

// RunCatalog serves the catalog service until ctx is done. Sessions are
// verified through the identity service.
func RunCatalog(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing catalog service", zap.String("addr", cfg.Addr))
	s := newServer("catalog", lg, cfg)

	pool, err := s.postgres(ctx, db.CatalogSchema)
	if err != nil {
		return err
	}
	defer pool.Close()

	identity, err := upstream.NewIdentity(cfg.Upstream.IdentityURL, cfg.Session.CookieName, s.upstreamOptions())
	if err != nil {
		return errors.Wrap(err, "create identity client")
	}
	verifier, err := session.NewVerifier(s.tokens(), identity,
		session.WithLookupTimeout(cfg.Upstream.Timeout),
		session.WithMeter(m.MeterProvider().Meter("bookstore/catalog")),
	)
	if err != nil {
		return errors.Wrap(err, "create session verifier")
	}

	catalog := handler.NewCatalog(postgres.NewBookRepository(pool))
	s.router.Group(func(r chi.Router) {
		r.Use(handler.Authenticate(verifier, s.cookies()))
		catalog.Mount(r)
	})

	return s.run(ctx)
}
