package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/types/environments"
)

type AppConfig struct {
	Environment    environments.Environment
	ApiServer      ApiServerConfig
	Postgres       DBConnection
	Redis          RedisConfig
	Vault          VaultConfig
	Webhook        WebhookConfig
	Idempotency    IdempotencyConfig
	Exchange       ExchangeConfig
	Bitcoin        BitcoinConfig
	Reconciliation ReconciliationConfig
	Alert          AlertConfig
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

// RedisConfig configures the tenant cache. An empty Addr disables it.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	TenantCacheTTL time.Duration
}

type VaultConfig struct {
	Addr         string
	KVSecretPath string
	Role         string
}

type WebhookConfig struct {
	StripeSecret     string
	GenericSecret    string
	ToleranceSeconds int64
}

type IdempotencyConfig struct {
	TTL           time.Duration
	FailOpen      bool
	SweepSchedule string
}

type ExchangeConfig struct {
	Backend            string
	BaseURL            string
	APIKey             string
	APISecret          string
	Pair               string
	FeeRate            decimal.Decimal
	MinOrderAmount     decimal.Decimal
	MaxAttempts        int
	InitialBackoff     time.Duration
	RequestTimeout     time.Duration
	StatusPollAttempts int
	StatusPollInterval time.Duration
	SimulatedPrice     decimal.Decimal
}

type BitcoinConfig struct {
	Network string
}

// ReconciliationConfig holds every knob the sweep needs so call sites never
// hardcode a grace period or a tolerance.
type ReconciliationConfig struct {
	GracePeriod  time.Duration
	Tolerance    decimal.Decimal
	Window       time.Duration
	Schedule     string
	Concurrency  int
	UptimeURL    string
	SweepTimeout time.Duration
}

type AlertConfig struct {
	WebhookURL           string
	IdempotencyUptimeURL string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Parse(env),
		ApiServer: ApiServerConfig{
			Port:           envOrDefault("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: envOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:           os.Getenv("REDIS_ADDR"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             envInt("REDIS_DB", 0),
			TenantCacheTTL: envDuration("REDIS_TENANT_CACHE_TTL", time.Minute),
		},
		Vault: VaultConfig{
			Addr:         os.Getenv("VAULT_ADDR"),
			KVSecretPath: os.Getenv("VAULT_KV_SECRET_PATH"),
			Role:         os.Getenv("VAULT_ROLE"),
		},
		Webhook: WebhookConfig{
			StripeSecret:     os.Getenv("WEBHOOK_STRIPE_SECRET"),
			GenericSecret:    os.Getenv("WEBHOOK_GENERIC_SECRET"),
			ToleranceSeconds: int64(envInt("WEBHOOK_TOLERANCE_SECONDS", 300)),
		},
		Idempotency: IdempotencyConfig{
			TTL:           envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
			FailOpen:      envBool("IDEMPOTENCY_FAIL_OPEN", true),
			SweepSchedule: envOrDefault("IDEMPOTENCY_SWEEP_SCHEDULE", "@every 1h"),
		},
		Exchange: ExchangeConfig{
			Backend:            envOrDefault("EXCHANGE_BACKEND", "simulated"),
			BaseURL:            os.Getenv("EXCHANGE_BASE_URL"),
			APIKey:             os.Getenv("EXCHANGE_API_KEY"),
			APISecret:          os.Getenv("EXCHANGE_API_SECRET"),
			Pair:               envOrDefault("EXCHANGE_PAIR", "BTC-AUD"),
			FeeRate:            envDecimal("EXCHANGE_FEE_RATE", "0.005"),
			MinOrderAmount:     envDecimal("EXCHANGE_MIN_ORDER_AMOUNT", "10"),
			MaxAttempts:        envInt("EXCHANGE_MAX_ATTEMPTS", 3),
			InitialBackoff:     envDuration("EXCHANGE_INITIAL_BACKOFF", 500*time.Millisecond),
			RequestTimeout:     envDuration("EXCHANGE_REQUEST_TIMEOUT", 10*time.Second),
			StatusPollAttempts: envInt("EXCHANGE_STATUS_POLL_ATTEMPTS", 5),
			StatusPollInterval: envDuration("EXCHANGE_STATUS_POLL_INTERVAL", time.Second),
			SimulatedPrice:     envDecimal("EXCHANGE_SIMULATED_PRICE", "65000"),
		},
		Bitcoin: BitcoinConfig{
			Network: envOrDefault("BTC_NETWORK", "testnet"),
		},
		Reconciliation: ReconciliationConfig{
			GracePeriod:  envDuration("RECONCILIATION_GRACE_PERIOD", 5*time.Minute),
			Tolerance:    envDecimal("RECONCILIATION_TOLERANCE", "0.01"),
			Window:       envDuration("RECONCILIATION_WINDOW", 24*time.Hour),
			Schedule:     envOrDefault("RECONCILIATION_SCHEDULE", "@every 15m"),
			Concurrency:  envInt("RECONCILIATION_CONCURRENCY", 4),
			UptimeURL:    os.Getenv("RECONCILIATION_UPTIME_WEBHOOK_URL"),
			SweepTimeout: envDuration("RECONCILIATION_SWEEP_TIMEOUT", 10*time.Minute),
		},
		Alert: AlertConfig{
			WebhookURL:           os.Getenv("ALERT_WEBHOOK_URL"),
			IdempotencyUptimeURL: os.Getenv("IDEMPOTENCY_UPTIME_WEBHOOK_URL"),
		},
	}
}

// SecretGetter reads a named secret from an external secret store.
type SecretGetter interface {
	GetKV(secretKey string) (string, error)
}

// ApplySecrets fills credentials that were not provided through the
// environment from the secret store.
func (c *AppConfig) ApplySecrets(secrets SecretGetter) error {
	targets := map[string]*string{
		"DB_PASS":                &c.Postgres.Pass,
		"EXCHANGE_API_KEY":       &c.Exchange.APIKey,
		"EXCHANGE_API_SECRET":    &c.Exchange.APISecret,
		"WEBHOOK_STRIPE_SECRET":  &c.Webhook.StripeSecret,
		"WEBHOOK_GENERIC_SECRET": &c.Webhook.GenericSecret,
	}
	for key, dst := range targets {
		if *dst != "" {
			continue
		}
		v, err := secrets.GetKV(key)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func envOrDefault(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envInt(envName string, fallback int) int {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envBool(envName string, fallback bool) bool {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true"
}

func envDuration(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(err)
	}
	return value
}

func envDecimal(envName, fallback string) decimal.Decimal {
	return decimal.RequireFromString(envOrDefault(envName, fallback))
}
