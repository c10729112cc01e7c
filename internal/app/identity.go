package app

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/db"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/session"
	"github.com/xenking/bookstore/internal/domain/user"
	"github.com/xenking/bookstore/internal/handler"
	"github.com/xenking/bookstore/internal/storage/postgres"
	rediscart "github.com/xenking/bookstore/internal/storage/redis"
	"github.com/xenking/bookstore/internal/upstream"
	"github.com/xenking/bookstore/pkg/health"
)

// RunIdentity serves accounts, sessions and carts until ctx is done. Sessions
// are verified against the local user repository.
func RunIdentity(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing identity service", zap.String("addr", cfg.Addr))
	s := newServer("identity", lg, cfg)

	pool, err := s.postgres(ctx, db.IdentitySchema)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	s.monitor.Register(health.Probe{
		Name:    "redis",
		Kind:    health.Readiness,
		Timeout: 2 * time.Second,
		Check:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	tokens := s.tokens()
	users, err := user.NewService(postgres.NewUserRepository(pool), tokens, 0)
	if err != nil {
		return errors.Wrap(err, "create user service")
	}
	verifier, err := session.NewVerifier(tokens, users,
		session.WithMeter(m.MeterProvider().Meter("bookstore/identity")),
	)
	if err != nil {
		return errors.Wrap(err, "create session verifier")
	}

	catalog, err := upstream.NewCatalog(cfg.Upstream.CatalogURL, s.upstreamOptions())
	if err != nil {
		return errors.Wrap(err, "create catalog client")
	}
	carts := cart.NewService(rediscart.NewCartRepository(rdb, cfg.Cart.Retention), catalog)

	identityHandler := handler.NewIdentity(users, tokens, s.cookies(), s.limiter())
	cartHandler := handler.NewCart(carts)
	s.router.Group(func(r chi.Router) {
		r.Use(handler.Authenticate(verifier, s.cookies()))
		identityHandler.Mount(r)
		cartHandler.Mount(r)
	})

	return s.run(ctx)
}
