package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	// EnvPrefix is the envconfig prefix shared by every binary.
	EnvPrefix = "atelier"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Fees         FeesConfig
	Escrow       EscrowConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ATELIER_APP_ENV" required:"true"`
	Port         string `envconfig:"ATELIER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ATELIER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ATELIER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ATELIER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN             string        `envconfig:"ATELIER_DB_DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"ATELIER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ATELIER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ATELIER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ATELIER_REDIS_URL"`
	Address      string        `envconfig:"ATELIER_REDIS_ADDR"`
	Password     string        `envconfig:"ATELIER_REDIS_PASSWORD"`
	DB           int           `envconfig:"ATELIER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ATELIER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ATELIER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ATELIER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ATELIER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ATELIER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"ATELIER_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"ATELIER_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"ATELIER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type FeesConfig struct {
	// PlatformRate is the platform's share of the gross amount, e.g. "0.15".
	PlatformRate string `envconfig:"ATELIER_FEES_PLATFORM_RATE" default:"0.15"`
}

// Rate parses the configured platform rate into a decimal.
func (f FeesConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(f.PlatformRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (f FeesConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(f.PlatformRate))
	if err != nil {
		return fmt.Errorf("invalid platform fee rate %q: %w", f.PlatformRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate %q must be in [0, 1)", f.PlatformRate)
	}
	return nil
}

type EscrowConfig struct {
	// AutoAcceptAfter is how long a delivered order waits for buyer acceptance
	// before the sweep completes it on the buyer's behalf.
	AutoAcceptAfter time.Duration `envconfig:"ATELIER_ESCROW_AUTO_ACCEPT_AFTER" default:"168h"`
	// PendingPaymentTTL bounds how long an order may sit in pending_payment
	// before its hold is voided.
	PendingPaymentTTL time.Duration `envconfig:"ATELIER_ESCROW_PENDING_PAYMENT_TTL" default:"24h"`
	MaxRevisions      int           `envconfig:"ATELIER_ESCROW_MAX_REVISIONS" default:"3"`
	GatewayTimeout    time.Duration `envconfig:"ATELIER_ESCROW_GATEWAY_TIMEOUT" default:"15s"`
	RetryMaxAttempts  uint64        `envconfig:"ATELIER_ESCROW_RETRY_MAX_ATTEMPTS" default:"4"`
	RetryBaseDelay    time.Duration `envconfig:"ATELIER_ESCROW_RETRY_BASE_DELAY" default:"250ms"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ATELIER_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"ATELIER_CRON_LOCK_TTL" default:"2h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ATELIER_AUTO_MIGRATE" default:"false"`
}
