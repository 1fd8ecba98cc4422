package bootstrap

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/chambahq/identity-core/config"
	"github.com/chambahq/identity-core/internal/adapters/devauth"
	"github.com/chambahq/identity-core/internal/adapters/oidc"
	"github.com/chambahq/identity-core/internal/adapters/pg"
	redisadapter "github.com/chambahq/identity-core/internal/adapters/redis"
	httpx "github.com/chambahq/identity-core/internal/http"
	"github.com/chambahq/identity-core/internal/observability/metrics"
	"github.com/chambahq/identity-core/internal/ports"
	"github.com/chambahq/identity-core/internal/service"
)

// CoreConfig contains dependencies for building the session core.
type CoreConfig struct {
	Auth        config.AuthConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// SessionCoreSet bundles the per-device factories the HTTP layer consumes.
type SessionCoreSet struct {
	Cores *httpx.CoreRegistry
	Flags httpx.FlagsFactory
}

// devicePrefix scopes all Redis keys to one browser.
func devicePrefix(deviceID string) string {
	return "device:" + deviceID + ":"
}

// BuildSessionCore creates the per-device session core factories based on the
// configured auth mode.
func BuildSessionCore(cfg CoreConfig) (*SessionCoreSet, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("session core requires a redis client")
	}
	if cfg.DB == nil {
		return nil, errors.New("session core requires the profile database")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles := pg.NewProfileStore(cfg.DB)

	session := cfg.Auth.Session
	factory := func(deviceID string) httpx.SessionCore {
		prefix := devicePrefix(deviceID)
		tokens := redisadapter.NewTokenStore(cfg.RedisClient, redisadapter.TokenStoreOptions{
			Prefix: prefix,
			TTL:    session.FreshnessWindow,
		})
		flags := redisadapter.NewFlagSurface(cfg.RedisClient, prefix)
		deviceLogger := logger.With("device_id", deviceID)

		resolver := service.NewProfileResolver(service.ProfileResolverOptions{
			Store:          profiles,
			Tokens:         tokens,
			Logger:         deviceLogger,
			QueryTimeout:   session.ProfileQueryTimeout,
			FallbackMaxAge: session.ProfileFallbackMaxAge,
			Metrics:        cfg.Metrics,
		})
		return service.NewSessionService(service.SessionServiceOptions{
			Provider:        provider,
			Profiles:        resolver,
			Tokens:          tokens,
			Flags:           flags,
			Logger:          deviceLogger,
			Metrics:         cfg.Metrics,
			FreshnessWindow: session.FreshnessWindow,
		})
	}

	flagsFactory := func(deviceID string) ports.FlagSurface {
		return redisadapter.NewFlagSurface(cfg.RedisClient, devicePrefix(deviceID))
	}

	return &SessionCoreSet{
		Cores: httpx.NewCoreRegistry(factory),
		Flags: flagsFactory,
	}, nil
}

//nolint:ireturn // the provider is selected by auth mode at runtime.
func buildProvider(cfg CoreConfig) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return devauth.NewProvider(devauth.Config{
			UserID: cfg.Auth.DevAuth.UserID,
			Email:  cfg.Auth.DevAuth.Email,
		})

	case config.AuthModeOAuth:
		oauth := cfg.Auth.Provider
		if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
			return nil, errors.New("AuthModeOAuth requires OAUTH_DISCOVERY_URL, OAUTH_CLIENT_ID, and OAUTH_CLIENT_SECRET")
		}
		return oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			RevokeURL:    oauth.RevokeURL,
			MagicLinkURL: oauth.MagicLinkURL,
		})

	default:
		return nil, errors.New("unknown auth mode")
	}
}

// BuildMetrics creates a Prometheus registry with the session collector
// registered, or nil collector outputs when metrics are disabled.
func BuildMetrics(cfg config.ObservabilityMetricsConfig) (*prometheus.Registry, *metrics.Collector) {
	if !cfg.Enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return reg, metrics.NewCollector(reg)
}
