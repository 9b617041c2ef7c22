package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration values
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Gateway      GatewayConfig
	Accounts     AccountsConfig
	Mail         MailConfig
	Cron         CronConfig
	Provisioning ProvisioningConfig
	Reconciler   ReconcilerConfig
	Security     SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `env:"SERVER_PORT" env-default:"8080"`
	Env  string `env:"SERVER_ENV" env-default:"development"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string `env:"DB_HOST" env-default:"localhost"`
	Port           int    `env:"DB_PORT" env-default:"5432"`
	User           string `env:"DB_USER" env-default:"postgres"`
	Password       string `env:"DB_PASSWORD" env-default:"postgres"`
	DBName         string `env:"DB_NAME" env-default:"checkout"`
	SSLMode        string `env:"DB_SSLMODE" env-default:"disable"`
	MigrationsPath string `env:"DB_MIGRATIONS_PATH" env-default:"migrations"`
	AutoMigrate    bool   `env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string `env:"REDIS_URL" env-default:"redis://localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
}

// GatewayConfig holds the payment gateway API settings
type GatewayConfig struct {
	BaseURL       string        `env:"GATEWAY_BASE_URL" env-default:"https://api.mercadopago.com"`
	AccessToken   string        `env:"GATEWAY_ACCESS_TOKEN"`
	WebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT" env-default:"10s"`
}

// AccountsConfig holds the account provisioning service settings
type AccountsConfig struct {
	BaseURL    string        `env:"ACCOUNTS_BASE_URL" env-default:"http://localhost:54321/auth/v1"`
	ServiceKey string        `env:"ACCOUNTS_SERVICE_KEY"`
	Timeout    time.Duration `env:"ACCOUNTS_TIMEOUT" env-default:"10s"`
}

// MailConfig holds email provider settings
type MailConfig struct {
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	FromEmail      string `env:"MAIL_FROM_EMAIL" env-default:"no-reply@example.com"`
	FromName       string `env:"MAIL_FROM_NAME" env-default:"Checkout"`
	LoginURL       string `env:"MAIL_LOGIN_URL" env-default:"https://example.com/login"`
	Sandbox        bool   `env:"MAIL_SANDBOX" env-default:"false"`
}

// CronConfig holds the reconciliation sweep trigger settings
type CronConfig struct {
	Secret    string        `env:"CRON_SECRET"`
	Interval  time.Duration `env:"CRON_INTERVAL" env-default:"5m"`
	InProcess bool          `env:"CRON_IN_PROCESS" env-default:"false"`
	Lookback  time.Duration `env:"CRON_LOOKBACK" env-default:"48h"`
	LockTTL   time.Duration `env:"CRON_LOCK_TTL" env-default:"4m"`
}

// ProvisioningConfig holds provisioning worker settings
type ProvisioningConfig struct {
	MaxRetries int           `env:"PROVISIONING_MAX_RETRIES" env-default:"5"`
	BatchSize  int           `env:"PROVISIONING_BATCH_SIZE" env-default:"50"`
	StaleAfter time.Duration `env:"PROVISIONING_STALE_AFTER" env-default:"15m"`
}

// ReconcilerConfig holds the order lookup retry budget
type ReconcilerConfig struct {
	MaxAttempts    int           `env:"RECONCILER_MAX_ATTEMPTS" env-default:"5"`
	Delay          time.Duration `env:"RECONCILER_DELAY" env-default:"2s"`
	EnrichmentSkew time.Duration `env:"RECONCILER_ENRICHMENT_WINDOW" env-default:"10m"`
}

// SecurityConfig holds security encryption keys
type SecurityConfig struct {
	CredentialKey string `env:"CREDENTIAL_ENCRYPTION_KEY"` // 32-bytes hex string, all-zero only allowed in development
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from env: %w", err)
	}
	return &cfg, nil
}
