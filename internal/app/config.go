package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:5001"

// Config holds the complete application configuration, loadable from
// environment variables (LENS_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr         string `default:"0.0.0.0:5001" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (LENS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr    string `usage:"Redis address for idempotent checkout, empty disables it" flag:"redis-addr"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image references" flag:"image-base-url"`
	Auth         AuthConfig
	Mail         MailConfig
	Outbox       OutboxConfig
	Kafka        KafkaConfig
	Database     DatabaseConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls admin tokens.
type AuthConfig struct {
	JWTSecret     string        `usage:"HMAC secret for admin tokens" flag:"jwt-secret"`
	TokenTTL      time.Duration `default:"24h" usage:"Admin token lifetime"`
	AllowRegister bool          `default:"false" usage:"Expose POST /api/auth/register" flag:"allow-register"`
}

// MailConfig controls SMTP delivery. Without a host mails are only logged.
type MailConfig struct {
	Host            string        `usage:"SMTP host, empty logs mails instead of sending them"`
	Port            int           `default:"587" usage:"SMTP port"`
	Username        string        `usage:"SMTP username"`
	Password        string        `usage:"SMTP password"`
	From            string        `default:"Lensciaga <no-reply@lensciaga.com>" usage:"Sender address"`
	OperatorAddress string        `default:"orders@lensciaga.com" usage:"Address that receives a copy of every order" flag:"operator-address"`
	Timeout         time.Duration `default:"10s" usage:"Timeout of a single send"`
	RatePerSecond   float64       `default:"5" usage:"Maximum mails sent per second"`
}

// OutboxConfig controls the notification relay.
type OutboxConfig struct {
	PollInterval time.Duration `default:"2s" usage:"Outbox poll interval"`
	BatchSize    int           `default:"20" usage:"Records claimed per poll"`
	MaxAttempts  int           `default:"1" usage:"Delivery attempts before a record is abandoned"`
	BacklogLimit int           `default:"1000" usage:"Pending records above which readiness fails"`
}

// KafkaConfig enables order event publishing when brokers are set.
type KafkaConfig struct {
	Brokers string `usage:"Comma separated Kafka brokers, empty disables events"`
	Topic   string `default:"lensciaga.orders" usage:"Topic for order events"`
}

// DatabaseConfig bounds database work.
type DatabaseConfig struct {
	QueryTimeout time.Duration `default:"5s" usage:"Timeout of the database work of a single call" flag:"query-timeout"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Burst size and requests per window"`
	Window time.Duration `default:"1m"  usage:"Time to refill an empty bucket"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           int      `default:"86400" usage:"Preflight cache duration in seconds"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then configuration from environment variables,
// flags and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "LENS",
		Files:     []string{"config.yaml", "/etc/lens/config.yaml"},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	acfg.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}

	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set LENS_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("jwt secret is required: set LENS_AUTH_JWT_SECRET or JWT_SECRET")
	case c.Mail.Host != "" && c.Mail.From == "":
		return errors.New("mail sender address is required when a SMTP host is set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names (DATABASE_URL, PORT, JWT_SECRET) to the LENS_ prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
