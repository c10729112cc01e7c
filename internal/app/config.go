package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the configuration of one bookstore service, loadable from
// environment variables (BOOKSTORE_ prefix), flags, or YAML config files.
// Each service reads only the sections it needs.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (BOOKSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Session     SessionConfig
	Upstream    UpstreamConfig
	Cart        CartConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the cart store of the identity service.
type RedisConfig struct {
	URL string `default:"redis://localhost:6379/0" usage:"Redis connection URL (BOOKSTORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// SessionConfig controls session tokens and the session cookie.
type SessionConfig struct {
	Secret     string        `usage:"HMAC secret shared by all services for session tokens" flag:"session-secret"`
	TTL        time.Duration `default:"24h" usage:"Session token lifetime"`
	CookieName string        `default:"auth_token" usage:"Session cookie name" flag:"cookie-name"`
	Secure     bool          `default:"false" usage:"Mark the session cookie Secure" flag:"cookie-secure"`
}

// UpstreamConfig locates the collaborator services and tunes the calls made
// to them.
type UpstreamConfig struct {
	IdentityURL      string        `default:"http://localhost:8081" usage:"Identity service base URL" flag:"identity-url"`
	CatalogURL       string        `default:"http://localhost:8082" usage:"Catalog service base URL" flag:"catalog-url"`
	Timeout          time.Duration `default:"3s" usage:"Per-call timeout for upstream requests"`
	FailureThreshold uint32        `default:"5" usage:"Consecutive failures that open a circuit breaker"`
	OpenTimeout      time.Duration `default:"10s" usage:"How long an open circuit breaker rejects calls"`
}

// CartConfig controls cart snapshots kept for restore.
type CartConfig struct {
	Retention time.Duration `default:"1h" usage:"How long a cart cleared with an idempotency key stays restorable"`
}

// RateLimitConfig controls the per-client limiter on login and checkout.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max login or checkout requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads the configuration of service from environment variables,
// YAML config files, and platform-specific variables.
func LoadConfig(service string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BOOKSTORE",
		Files:     []string{"config.yaml", "/etc/bookstore/" + service + ".yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BOOKSTORE_DATABASE_URL or DATABASE_URL")
	}
	if c.Session.Secret == "" {
		return errors.New("session secret is required: set BOOKSTORE_SESSION_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, REDIS_URL and PORT to the configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("BOOKSTORE_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
