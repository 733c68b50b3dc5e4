package config

import (
	"fmt"
	"strings"
	"time"
)

type StoreBackend string

const (
	StoreBackendMemory  StoreBackend = "memory"
	StoreBackendDurable StoreBackend = "durable"
)

type EmailProvider string

const (
	EmailProviderLog      EmailProvider = "log"
	EmailProviderPostmark EmailProvider = "postmark"
)

// Values is the loaded configuration. Field tags are the environment variable names.
type Values struct {
	Port     string `mapstructure:"PORT"`
	AppName  string `mapstructure:"APP_NAME"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTCookieName string        `mapstructure:"JWT_COOKIE_NAME"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`
	TwoFACodeTTL  time.Duration `mapstructure:"TWO_FA_CODE_TTL"`
	BcryptCost    int           `mapstructure:"BCRYPT_COST"`

	StoreBackend   StoreBackend  `mapstructure:"STORE_BACKEND"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	MigrateOnStart bool          `mapstructure:"MIGRATE_ON_START"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`

	EmailProvider       EmailProvider `mapstructure:"EMAIL_PROVIDER"`
	EmailSender         string        `mapstructure:"EMAIL_SENDER"`
	PostmarkServerToken string        `mapstructure:"POSTMARK_SERVER_TOKEN"`
	PostmarkBaseURL     string        `mapstructure:"POSTMARK_BASE_URL"`
	EmailTimeout        time.Duration `mapstructure:"EMAIL_TIMEOUT"`

	// comma separated
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
}

// GetPort returns the listen address, always with a leading colon.
func (v Values) GetPort() string {
	port := v.Port
	if port == "" {
		port = "3000"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (v Values) GetAppName() string {
	return v.AppName
}

func (v Values) GetEnv() string {
	if v.Env == "" {
		return "DEV"
	}
	return v.Env
}

func (v Values) IsDev() bool {
	return strings.EqualFold(v.GetEnv(), "DEV")
}

func (v Values) GetLogLevel() string {
	return v.LogLevel
}

func (v Values) GetJWTSecret() string {
	return v.JWTSecret
}

func (v Values) GetJWTCookieName() string {
	return v.JWTCookieName
}

func (v Values) GetTokenTTL() time.Duration {
	return v.TokenTTL
}

func (v Values) GetTwoFACodeTTL() time.Duration {
	return v.TwoFACodeTTL
}

func (v Values) GetBcryptCost() int {
	return v.BcryptCost
}

func (v Values) GetStoreBackend() StoreBackend {
	return v.StoreBackend
}

func (v Values) GetStoreTimeout() time.Duration {
	return v.StoreTimeout
}

func (v Values) GetDatabaseURL() string {
	return v.DatabaseURL
}

func (v Values) GetMigrateOnStart() bool {
	return v.MigrateOnStart
}

func (v Values) GetRedisAddr() string {
	return v.RedisAddr
}

func (v Values) GetRedisPassword() string {
	return v.RedisPassword
}

func (v Values) GetRedisDB() int {
	return v.RedisDB
}

func (v Values) GetEmailProvider() EmailProvider {
	return v.EmailProvider
}

func (v Values) GetEmailSender() string {
	return v.EmailSender
}

func (v Values) GetPostmarkServerToken() string {
	return v.PostmarkServerToken
}

func (v Values) GetPostmarkBaseURL() string {
	return v.PostmarkBaseURL
}

func (v Values) GetEmailTimeout() time.Duration {
	return v.EmailTimeout
}
