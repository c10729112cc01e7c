package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/db"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/handler"
	"github.com/xenking/bookstore/internal/storage/postgres"
	"github.com/xenking/bookstore/internal/upstream"
)

// RunOrder serves checkout and order history until ctx is done. The identity
// service supplies profiles and carts; the catalog service supplies books.
func RunOrder(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing order service", zap.String("addr", cfg.Addr))
	s := newServer("order", lg, cfg)

	pool, err := s.postgres(ctx, db.OrderSchema)
	if err != nil {
		return err
	}
	defer pool.Close()

	identity, err := upstream.NewIdentity(cfg.Upstream.IdentityURL, cfg.Session.CookieName, s.upstreamOptions())
	if err != nil {
		return errors.Wrap(err, "create identity client")
	}
	catalog, err := upstream.NewCatalog(cfg.Upstream.CatalogURL, s.upstreamOptions())
	if err != nil {
		return errors.Wrap(err, "create catalog client")
	}

	meter := m.MeterProvider().Meter("bookstore/order")
	verifier, err := session.NewVerifier(s.tokens(), identity,
		session.WithLookupTimeout(cfg.Upstream.Timeout),
		session.WithMeter(meter),
	)
	if err != nil {
		return errors.Wrap(err, "create session verifier")
	}

	store := postgres.NewOrderStore(pool)
	checkout, err := order.NewCheckout(verifier, identity, store,
		order.WithCheckoutMeter(meter),
		order.WithRemoteTimeout(cfg.Upstream.Timeout),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout")
	}

	h := handler.NewOrder(checkout, order.NewService(store, catalog), verifier, s.cookies(), s.limiter())
	h.Mount(s.router)

	return s.run(ctx)
}
