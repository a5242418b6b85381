// Package config loads process configuration once at start-up.
//
// Precedence, lowest first: built-in defaults, the YAML file named by
// --config or FELLOWSHIP_CONFIG, then environment variables (a .env file in
// the working directory is loaded into the environment first).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "fellowship.config"

// WithContext returns a copy of ctx carrying cfg.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

// FromContext returns the Config stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Mode selects development conveniences.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// MinSecretLength is the shortest JWT secret accepted outside dev mode.
const MinSecretLength = 32

// EnvConfigFile names the variable that points at a YAML config file.
const EnvConfigFile = "FELLOWSHIP_CONFIG"

const (
	devAccessSecret  = "dev-only-access-secret-change-me-0123456789"
	devRefreshSecret = "dev-only-refresh-secret-change-me-0123456789"
)

var (
	ErrSecretMissing = errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set")
	ErrSecretShort   = fmt.Errorf("JWT secrets must be at least %d bytes", MinSecretLength)
	ErrSecretReused  = errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	ErrInvalidMode   = errors.New("MODE must be 'dev' or 'prod'")
)

// Config holds every setting the service reads at start.
type Config struct {
	Mode        Mode   `yaml:"mode"        envconfig:"MODE"`
	DatabaseURL string `yaml:"databaseUrl" envconfig:"DATABASE_URL"`
	ListenAddr  string `yaml:"listenAddr"  envconfig:"LISTEN_ADDR"`
	APIBaseURL  string `yaml:"apiBaseUrl"  envconfig:"API_BASE_URL"`
	StaticDir   string `yaml:"staticDir"   envconfig:"STATIC_DIR"`

	JWTSecret        string        `yaml:"jwtSecret"        envconfig:"JWT_SECRET"`
	JWTRefreshSecret string        `yaml:"jwtRefreshSecret" envconfig:"JWT_REFRESH_SECRET"`
	JWTAccessTTL     time.Duration `yaml:"jwtAccessTtl"     envconfig:"JWT_ACCESS_TTL"`
	JWTRefreshTTL    time.Duration `yaml:"jwtRefreshTtl"    envconfig:"JWT_REFRESH_TTL"`

	LogLevel  string `yaml:"logLevel"  envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT"`

	DBMaxOpenConns int `yaml:"dbMaxOpenConns" envconfig:"DB_MAX_OPEN_CONNS"`
	DBSlowQueryMs  int `yaml:"dbSlowQueryMs"  envconfig:"DB_SLOW_QUERY_MS"`

	ResendAPIKey string `yaml:"resendApiKey" envconfig:"RESEND_API_KEY"`
	SMTPHost     string `yaml:"smtpHost"     envconfig:"SMTP_HOST"`
	SMTPPort     int    `yaml:"smtpPort"     envconfig:"SMTP_PORT"`
	SMTPUser     string `yaml:"smtpUser"     envconfig:"SMTP_USER"`
	SMTPPassword string `yaml:"smtpPassword" envconfig:"SMTP_PASSWORD"`
	EmailFrom    string `yaml:"emailFrom"    envconfig:"EMAIL_FROM"`

	VAPIDPublicKey  string `yaml:"vapidPublicKey"  envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `yaml:"vapidPrivateKey" envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `yaml:"vapidSubject"    envconfig:"VAPID_SUBJECT"`

	RedisURL    string `yaml:"redisUrl"    envconfig:"REDIS_URL"`
	AuditStream string `yaml:"auditStream" envconfig:"AUDIT_STREAM"`

	OTLPEndpoint string `yaml:"otlpEndpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	RateLimitRPS   float64 `yaml:"rateLimitRps"   envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst" envconfig:"RATE_LIMIT_BURST"`

	AdminEmail    string `yaml:"adminEmail"    envconfig:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"adminPassword" envconfig:"ADMIN_PASSWORD"`

	ReminderCron    string        `yaml:"reminderCron"    envconfig:"REMINDER_CRON"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Mode:            ModeProd,
		DatabaseURL:     "fellowship.db",
		ListenAddr:      ":8080",
		APIBaseURL:      "http://localhost:8080",
		JWTAccessTTL:    15 * time.Minute,
		JWTRefreshTTL:   7 * 24 * time.Hour,
		LogLevel:        "info",
		LogFormat:       "json",
		DBMaxOpenConns:  10,
		DBSlowQueryMs:   50,
		SMTPPort:        587,
		EmailFrom:       "Fellowship <noreply@localhost>",
		VAPIDSubject:    "mailto:admin@localhost",
		AuditStream:     "fellowship:audit",
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		ReminderCron:    "0 * * * *",
		ShutdownTimeout: 15 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment.
// PRE: configFile may be empty; FELLOWSHIP_CONFIG is consulted then
// POST: returns a validated Config or an error naming the bad setting
func Load(configFile string) (*Config, error) {
	// a missing .env is normal in production
	_ = godotenv.Load()

	cfg := Defaults()
	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	cfg.applyDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDevDefaults() {
	if c.Mode != ModeDev {
		return
	}
	if c.JWTSecret == "" {
		c.JWTSecret = devAccessSecret
	}
	if c.JWTRefreshSecret == "" {
		c.JWTRefreshSecret = devRefreshSecret
	}
	if c.LogFormat == "json" {
		c.LogFormat = "console"
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeProd {
		return ErrInvalidMode
	}
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return ErrSecretMissing
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return ErrSecretReused
	}
	if c.Mode != ModeDev && (len(c.JWTSecret) < MinSecretLength || len(c.JWTRefreshSecret) < MinSecretLength) {
		return ErrSecretShort
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	return nil
}

// IsDev reports whether development conveniences are enabled.
func (c *Config) IsDev() bool {
	return c.Mode == ModeDev
}

// SlowQuery is the threshold above which queries log at warn.
func (c *Config) SlowQuery() time.Duration {
	return time.Duration(c.DBSlowQueryMs) * time.Millisecond
}

// PushEnabled reports whether Web Push keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// PublicURL joins the API base URL and path.
func (c *Config) PublicURL(path string) string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
