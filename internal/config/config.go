// Package config loads the service configuration from an optional .env file and the environment.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config interface {
	EnvConfig
	AuthConfig
	StoreConfig
	EmailConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsDev() bool
	GetLogLevel() string
}

type AuthConfig interface {
	GetJWTSecret() string
	GetJWTCookieName() string
	GetTokenTTL() time.Duration
	GetTwoFACodeTTL() time.Duration
	GetBcryptCost() int
}

type StoreConfig interface {
	GetStoreBackend() StoreBackend
	GetStoreTimeout() time.Duration
	GetDatabaseURL() string
	GetMigrateOnStart() bool
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type EmailConfig interface {
	GetEmailProvider() EmailProvider
	GetEmailSender() string
	GetPostmarkServerToken() string
	GetPostmarkBaseURL() string
	GetEmailTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

var _ Config = Values{}

var defaults = map[string]any{
	"PORT":                  "3000",
	"APP_NAME":              "Auth Service",
	"ENV":                   "DEV",
	"LOG_LEVEL":             "info",
	"JWT_SECRET":            "",
	"JWT_COOKIE_NAME":       "jwt",
	"TOKEN_TTL":             "10m",
	"TWO_FA_CODE_TTL":       "10m",
	"BCRYPT_COST":           bcrypt.DefaultCost,
	"STORE_BACKEND":         string(StoreBackendMemory),
	"STORE_TIMEOUT":         "2s",
	"DATABASE_URL":          "",
	"MIGRATE_ON_START":      true,
	"REDIS_ADDR":            "127.0.0.1:6379",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"EMAIL_PROVIDER":        string(EmailProviderLog),
	"EMAIL_SENDER":          "",
	"POSTMARK_SERVER_TOKEN": "",
	"POSTMARK_BASE_URL":     "https://api.postmarkapp.com",
	"EMAIL_TIMEOUT":         "10s",
	"ALLOWED_ORIGINS":       "http://localhost:8000",
}

// Load reads .env from the working directory (if present) and then the environment.
// Environment variables win over the file.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads values from path and the environment without validating them.
// Tools that need only part of the configuration (cmd/migrate) use it directly.
func Read(path string) (Values, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Values
	if err := v.Unmarshal(&cfg); err != nil {
		return Values{}, errors.Wrap(err, "config: unmarshal")
	}
	cfg.StoreBackend = StoreBackend(strings.ToLower(strings.TrimSpace(string(cfg.StoreBackend))))
	cfg.EmailProvider = EmailProvider(strings.ToLower(strings.TrimSpace(string(cfg.EmailProvider))))
	return cfg, nil
}

// Defaults is an in-memory development configuration with a fixed test secret.
func Defaults() Values {
	return Values{
		Port:           "3000",
		AppName:        "Auth Service",
		Env:            "DEV",
		LogLevel:       "info",
		JWTSecret:      "insecure-development-secret",
		JWTCookieName:  "jwt",
		TokenTTL:       10 * time.Minute,
		TwoFACodeTTL:   10 * time.Minute,
		BcryptCost:     bcrypt.MinCost,
		StoreBackend:   StoreBackendMemory,
		StoreTimeout:   2 * time.Second,
		MigrateOnStart: true,
		RedisAddr:      "127.0.0.1:6379",
		EmailProvider:  EmailProviderLog,
		EmailTimeout:   10 * time.Second,
		AllowedOrigins: "http://localhost:8000",
	}
}

// Validate rejects configurations the service cannot start with.
func (v Values) Validate() error {
	if v.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if v.JWTCookieName == "" {
		return errors.New("config: JWT_COOKIE_NAME must not be empty")
	}
	if v.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}
	if v.TwoFACodeTTL <= 0 {
		return errors.New("config: TWO_FA_CODE_TTL must be positive")
	}
	if v.BcryptCost < bcrypt.MinCost || v.BcryptCost > bcrypt.MaxCost {
		return errors.Errorf("config: BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if v.StoreTimeout <= 0 {
		return errors.New("config: STORE_TIMEOUT must be positive")
	}

	switch v.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendDurable:
		if v.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE_BACKEND=durable")
		}
		if v.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when STORE_BACKEND=durable")
		}
	default:
		return errors.Errorf("config: unknown STORE_BACKEND %q", v.StoreBackend)
	}

	switch v.EmailProvider {
	case EmailProviderLog:
	case EmailProviderPostmark:
		if v.PostmarkServerToken == "" {
			return errors.New("config: POSTMARK_SERVER_TOKEN is required when EMAIL_PROVIDER=postmark")
		}
		if v.EmailSender == "" {
			return errors.New("config: EMAIL_SENDER is required when EMAIL_PROVIDER=postmark")
		}
	default:
		return errors.Errorf("config: unknown EMAIL_PROVIDER %q", v.EmailProvider)
	}
	return nil
}
