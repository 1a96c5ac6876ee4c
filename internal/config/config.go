package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	Billing     BillingConfig     `mapstructure:"billing"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type AppConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	Env       string `mapstructure:"env" validate:"oneof=development test staging production"`
	PublicURL string `mapstructure:"public_url" split_words:"true" validate:"omitempty,url"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" split_words:"true" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins" envconfig:"CORS_ORIGINS"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true" validate:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type MercadoPagoConfig struct {
	AccessToken     string        `mapstructure:"access_token" split_words:"true"`
	NotificationURL string        `mapstructure:"notification_url" split_words:"true" validate:"omitempty,url"`
	WebhookSecret   string        `mapstructure:"webhook_secret" split_words:"true"`
	BaseURL         string        `mapstructure:"base_url" split_words:"true" validate:"required,url"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type BillingConfig struct {
	PeriodDays int           `mapstructure:"period_days" split_words:"true" validate:"min=1"`
	GraceDays  int           `mapstructure:"grace_days" split_words:"true" validate:"min=0"`
	InviteTTL  time.Duration `mapstructure:"invite_ttl" split_words:"true" validate:"gt=0"`
}

// Period is the length of a paid billing period.
func (b BillingConfig) Period() time.Duration {
	return time.Duration(b.PeriodDays) * 24 * time.Hour
}

// Grace is how long an expired period stays past_due before blocking.
func (b BillingConfig) Grace() time.Duration {
	return time.Duration(b.GraceDays) * 24 * time.Hour
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
}

// Enabled reports whether outgoing mail is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type RateLimitConfig struct {
	RPS   float64       `mapstructure:"rps" validate:"gt=0"`
	Burst int           `mapstructure:"burst" validate:"min=1"`
	TTL   time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" split_words:"true" validate:"min=1"`
	PollInterval  time.Duration `mapstructure:"poll_interval" split_words:"true" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true" validate:"min=1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true" validate:"gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" split_words:"true" validate:"min=1"`
	Channel       string        `mapstructure:"channel" validate:"required"`
	// Retention is how long processed events are kept before pruning.
	Retention       time.Duration `mapstructure:"retention" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true" validate:"gt=0"`
	// HealthPort serves the worker's health and metrics endpoints.
	HealthPort int `mapstructure:"health_port" split_words:"true" validate:"min=1,max=65535"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email" validate:"omitempty,email"`
	Password string `mapstructure:"password"`
}

// IsProduction reports whether the service runs with production guarantees.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tenant-billing")
	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("app.public_url", "http://localhost:8080")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "tenant-billing")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("mercadopago.base_url", "https://api.mercadopago.com/v1/payments")
	v.SetDefault("mercadopago.timeout", 10*time.Second)

	v.SetDefault("billing.period_days", 30)
	v.SetDefault("billing.grace_days", 3)
	v.SetDefault("billing.invite_ttl", 7*24*time.Hour)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.ttl", 10*time.Minute)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 500*time.Millisecond)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.channel", "billing.events")
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)
	v.SetDefault("outbox.health_port", 8081)
}

// LoadConfig reads config.yaml from the usual locations, then .env, then
// the process environment, and validates the result.
func LoadConfig() (*Config, error) {
	return Load(".", "./config", "/app/config")
}

// Load is LoadConfig with explicit config file search paths.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables section by section, e.g.
// MP_WEBHOOK_SECRET, DATABASE_URL, APP_ENV.
func applyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		target interface{}
	}{
		{"APP", &cfg.App},
		{"SERVER", &cfg.Server},
		{"LOG", &cfg.Log},
		{"DATABASE", &cfg.Database},
		{"REDIS", &cfg.Redis},
		{"JWT", &cfg.JWT},
		{"MP", &cfg.MercadoPago},
		{"BILLING", &cfg.Billing},
		{"SMTP", &cfg.SMTP},
		{"RATE_LIMIT", &cfg.RateLimit},
		{"OUTBOX", &cfg.Outbox},
		{"ADMIN", &cfg.Admin},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return fmt.Errorf("failed to read %s_* environment: %w", s.prefix, err)
		}
	}
	return nil
}

// Validate checks field constraints and environment-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsProduction() && strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("invalid configuration: JWT_SECRET is required in production")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("invalid configuration: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Audit logs configuration that weakens security guarantees.
func (c *Config) Audit() {
	if c.MercadoPago.WebhookSecret == "" {
		log.Warn().
			Str("env", c.App.Env).
			Msg("MP_WEBHOOK_SECRET is not set: webhook signatures are NOT verified, any caller can trigger reconciliation")
	}
	if c.MercadoPago.AccessToken == "" {
		log.Warn().Msg("MP_ACCESS_TOKEN is not set: checkout and webhook reconciliation will fail")
	}
	if c.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET is not set: using an ephemeral signing key, tokens will not survive a restart")
	}
}
