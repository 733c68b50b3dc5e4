// Package bootstrap builds the stores, token manager, notifier and HTTP server from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/auth-service/auth"
	"github.com/jrsteele09/auth-service/email"
	"github.com/jrsteele09/auth-service/internal/config"
	"github.com/jrsteele09/auth-service/internal/db"
	"github.com/jrsteele09/auth-service/internal/db/migrate"
	apperrors "github.com/jrsteele09/auth-service/internal/errors"
	"github.com/jrsteele09/auth-service/server"
	"github.com/jrsteele09/auth-service/token"
	tokenredis "github.com/jrsteele09/auth-service/token/redisstore"
	twofaredis "github.com/jrsteele09/auth-service/twofa/redisstore"
	twofarepofake "github.com/jrsteele09/auth-service/twofa/repofake"
	"github.com/jrsteele09/auth-service/users"
	"github.com/jrsteele09/auth-service/users/postgres"
	fakeuserrepo "github.com/jrsteele09/auth-service/users/repofake"
)

const (
	revokedCleanupInterval = time.Minute
	migrateTimeout         = 30 * time.Second
)

// App is a fully wired service. Close releases every backend connection.
type App struct {
	Auth   *auth.Service
	Server *server.Server

	closers []func() error
}

// Stores are the three backing stores plus the health checks for whatever they connect to.
type Stores struct {
	Repos        auth.Repos
	HealthChecks map[string]server.HealthCheck

	closers []func() error
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return apperrors.Join(errs...)
}

// New wires the whole service from cfg
func New(ctx context.Context, cfg config.Config) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenManager(cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	svc, err := auth.NewService(stores.Repos, tokens, NewNotifier(cfg),
		auth.WithBcryptCost(cfg.GetBcryptCost()),
		auth.WithStoreTimeout(cfg.GetStoreTimeout()),
	)
	if err != nil {
		_ = stores.Close()
		return nil, errors.Wrap(err, "[bootstrap.New] auth.NewService")
	}

	options := make([]server.Option, 0, len(stores.HealthChecks))
	for name, check := range stores.HealthChecks {
		options = append(options, server.WithHealthCheck(name, check))
	}
	srv, err := server.New(cfg, svc, options...)
	if err != nil {
		_ = stores.Close()
		return nil, errors.Wrap(err, "[bootstrap.New] server.New")
	}

	return &App{
		Auth:    svc,
		Server:  srv,
		closers: []func() error{stores.Close},
	}, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return apperrors.Join(errs...)
}

// OpenStores selects the store backends named by STORE_BACKEND.
func OpenStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendMemory:
		return openMemoryStores(cfg), nil
	case config.StoreBackendDurable:
		return openDurableStores(ctx, cfg)
	default:
		return nil, errors.Errorf("[bootstrap.OpenStores] unknown store backend %q", cfg.GetStoreBackend())
	}
}

func openMemoryStores(cfg config.Config) *Stores {
	revoked := token.NewInMemoryRevokedTokenCache()
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(revokedCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := revoked.Cleanup(); n > 0 {
					log.Debug().Int("removed", n).Msg("expired revocations removed")
				}
			case <-stop:
				return
			}
		}
	}()

	log.Warn().Msg("using in-memory stores; state is lost on restart and not shared between instances")
	return &Stores{
		Repos: auth.Repos{
			Users:   fakeuserrepo.NewFakeUserRepo(),
			Codes:   twofarepofake.NewFakeCodeRepo(cfg.GetTwoFACodeTTL()),
			Revoked: revoked,
		},
		HealthChecks: map[string]server.HealthCheck{},
		closers: []func() error{func() error {
			close(stop)
			return nil
		}},
	}
}

func openDurableStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	if cfg.GetMigrateOnStart() {
		migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
		err := migrate.Run(migrateCtx, cfg.GetDatabaseURL(), migrate.DirectionUp)
		cancel()
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrBackendUnavailable, "[bootstrap.openDurableStores] migrate %v", err)
		}
	}

	sqlDB, err := db.Open(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrBackendUnavailable, "[bootstrap.openDurableStores] postgres %v", err)
	}

	client := NewRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetStoreTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		_ = sqlDB.Close()
		return nil, apperrors.Wrapf(apperrors.ErrBackendUnavailable, "[bootstrap.openDurableStores] redis %v", err)
	}

	stores := RedisStores(client, cfg, postgres.NewUserRepo(sqlDB))
	stores.HealthChecks["postgres"] = PostgresHealthCheck(sqlDB)
	stores.closers = append(stores.closers, client.Close, sqlDB.Close)
	log.Info().Str("redis", cfg.GetRedisAddr()).Msg("using durable stores")
	return stores, nil
}

// NewRedisClient bounds every network phase by the store timeout so a stalled Redis fails a request
// instead of hanging it.
func NewRedisClient(cfg config.Config) *redis.Client {
	timeout := cfg.GetStoreTimeout()
	return redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.GetRedisPassword(),
		DB:           cfg.GetRedisDB(),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// RedisStores puts the challenge and revocation stores on client and pairs them with userRepo.
// The caller owns client.
func RedisStores(client redis.UniversalClient, cfg config.Config, userRepo users.Repo) *Stores {
	return &Stores{
		Repos: auth.Repos{
			Users:   userRepo,
			Codes:   twofaredis.NewCodeRepo(client, "", cfg.GetTwoFACodeTTL()),
			Revoked: tokenredis.NewRevokedTokenCache(client, ""),
		},
		HealthChecks: map[string]server.HealthCheck{
			"redis": RedisHealthCheck(client),
		},
	}
}

func RedisHealthCheck(client redis.UniversalClient) server.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func PostgresHealthCheck(sqlDB *sql.DB) server.HealthCheck {
	return func(ctx context.Context) error {
		return sqlDB.PingContext(ctx)
	}
}

// NewTokenManager signs with JWT_SECRET and stamps the app name as issuer.
func NewTokenManager(cfg config.Config) (*token.Manager, error) {
	signer, err := token.NewHMACSigner(cfg.GetJWTSecret())
	if err != nil {
		return nil, errors.Wrap(err, "[bootstrap.NewTokenManager]")
	}
	tm, err := token.New(signer,
		token.WithTokenExpiry(cfg.GetTokenTTL()),
		token.WithIssuer(cfg.GetAppName()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[bootstrap.NewTokenManager]")
	}
	return tm, nil
}

func NewNotifier(cfg config.Config) email.Client {
	if cfg.GetEmailProvider() == config.EmailProviderPostmark {
		return email.NewPostmarkClient(
			cfg.GetPostmarkBaseURL(),
			users.Email(cfg.GetEmailSender()),
			cfg.GetPostmarkServerToken(),
			cfg.GetEmailTimeout(),
		)
	}
	return email.NewLogClient()
}
