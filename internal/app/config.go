package app

import (
	"os"
	"strconv"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/colormuse/print-api/internal/archive"
)

const defaultAddr = "0.0.0.0:8080"

// Ledger backends.
const (
	LedgerAuto     = "auto"
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (COLORMUSE_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string          `default:"0.0.0.0:8080" usage:"API server listen address"`
	PayPal    PayPalConfig    `env:"PAYPAL" flag:"paypal" yaml:"paypal"`
	Lulu      LuluConfig      `env:"LULU" flag:"lulu" yaml:"lulu"`
	SMTP      SMTPConfig      `env:"SMTP" flag:"smtp" yaml:"smtp"`
	Document  DocumentConfig  `env:"DOCUMENT" flag:"document" yaml:"document"`
	Order     OrderConfig     `env:"ORDER" flag:"order" yaml:"order"`
	Ledger    LedgerConfig    `env:"LEDGER" flag:"ledger" yaml:"ledger"`
	Archive   ArchiveConfig   `env:"ARCHIVE" flag:"archive" yaml:"archive"`
	Outbound  OutboundConfig  `env:"OUTBOUND" flag:"outbound" yaml:"outbound"`
	Server    ServerConfig    `env:"SERVER" flag:"server" yaml:"server"`
	RateLimit RateLimitConfig `env:"RATE_LIMIT" flag:"rate-limit" yaml:"rate_limit"`
	CORS      CORSConfig      `env:"CORS" flag:"cors" yaml:"cors"`
	Graceful  GracefulConfig  `env:"GRACEFUL" flag:"graceful" yaml:"graceful"`
}

// PayPalConfig holds Orders API credentials (PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET).
type PayPalConfig struct {
	BaseURL      string `env:"BASE_URL" default:"https://api-m.paypal.com" usage:"PayPal REST base URL"`
	ClientID     string `env:"CLIENT_ID" usage:"PayPal client id"`
	ClientSecret string `env:"CLIENT_SECRET" usage:"PayPal client secret"`
}

// LuluConfig holds Print API credentials (LULU_CLIENT_KEY, LULU_CLIENT_SECRET)
// and the book line item.
type LuluConfig struct {
	AuthURL       string `env:"AUTH_URL" default:"https://auth.lulu.com/oauth/token" usage:"Lulu token endpoint"`
	APIURL        string `env:"API_URL" default:"https://api.lulu.com" usage:"Lulu API base URL"`
	ClientKey     string `env:"CLIENT_KEY" usage:"Lulu client key"`
	ClientSecret  string `env:"CLIENT_SECRET" usage:"Lulu client secret"`
	Title         string `env:"TITLE" default:"Custom Coloring Book" usage:"Line item title"`
	Format        string `env:"FORMAT" default:"US_TRADE" usage:"Book format"`
	CoverType     string `env:"COVER_TYPE" default:"PAPERBACK" usage:"Cover type"`
	ShippingLevel string `env:"SHIPPING_LEVEL" usage:"Shipping level, provider default when empty"`
}

// SMTPConfig describes the confirmation mail relay (SMTP_SERVER, SMTP_PORT,
// SMTP_USERNAME, SMTP_PASSWORD, FROM_EMAIL).
type SMTPConfig struct {
	Host     string        `env:"HOST" usage:"Mail relay host"`
	Port     int           `env:"PORT" default:"587" usage:"Mail relay port"`
	Username string        `env:"USERNAME" usage:"Mail relay username"`
	Password string        `env:"PASSWORD" usage:"Mail relay password"`
	From     string        `env:"FROM" usage:"Sender address"`
	Timeout  time.Duration `env:"TIMEOUT" default:"15s" usage:"Mail delivery timeout"`
}

// DocumentConfig bounds image downloads and decoding.
type DocumentConfig struct {
	MaxImageBytes    int64 `env:"MAX_IMAGE_BYTES" default:"20971520" usage:"Per-image download cap"`
	FetchConcurrency int   `env:"FETCH_CONCURRENCY" default:"4" usage:"Parallel image downloads per order"`
	MaxImagePixels   int64 `env:"MAX_IMAGE_PIXELS" default:"50000000" usage:"Per-image width×height cap"`
}

// OrderConfig holds request-level settings.
type OrderConfig struct {
	// ExpectedAmount enables an amount check on verified payments when set.
	ExpectedAmount string `env:"EXPECTED_AMOUNT" usage:"Required captured amount, e.g. 29.99"`
	Currency       string `env:"CURRENCY" default:"USD" usage:"Required currency with expected-amount"`
	MaxBodyBytes   int64  `env:"MAX_BODY_BYTES" default:"67108864" usage:"Request body cap"`
}

// LedgerConfig selects the order deduplication store.
type LedgerConfig struct {
	Backend        string        `env:"BACKEND" default:"auto" usage:"auto, memory, postgres or redis"`
	DatabaseURL    string        `env:"DATABASE_URL" usage:"PostgreSQL connection URL (DATABASE_URL)" flag:"database-url"`
	RedisURL       string        `env:"REDIS_URL" usage:"Redis URL (REDIS_URL)" flag:"redis-url"`
	ReservationTTL time.Duration `env:"RESERVATION_TTL" default:"10m" usage:"How long an in-flight order blocks retries"`
	Retention      time.Duration `env:"RETENTION" default:"720h" usage:"How long Redis remembers fulfilled orders"`
}

// ArchiveConfig enables the S3 copy of submitted documents when Bucket is set.
type ArchiveConfig struct {
	Bucket       string `env:"BUCKET" usage:"S3 bucket, archive disabled when empty"`
	Region       string `env:"REGION" default:"us-east-1" usage:"S3 region"`
	Endpoint     string `env:"ENDPOINT" usage:"S3-compatible endpoint URL"`
	AccessKey    string `env:"ACCESS_KEY" usage:"S3 access key"`
	SecretKey    string `env:"SECRET_KEY" usage:"S3 secret key"`
	UsePathStyle bool   `env:"USE_PATH_STYLE" default:"false" usage:"Path-style bucket addressing"`
	Prefix       string `env:"PREFIX" default:"orders" usage:"Object key prefix"`
}

// OutboundConfig applies to every provider call.
type OutboundConfig struct {
	Timeout time.Duration `env:"TIMEOUT" default:"30s" usage:"Per-call timeout for provider requests"`
}

// ServerConfig holds HTTP server timeouts. Orders hold the connection while
// images download and the print job is placed.
type ServerConfig struct {
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" default:"30s" usage:"Request read timeout"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" default:"3m" usage:"Response write timeout"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" default:"120s" usage:"Keep-alive idle timeout"`
}

// RateLimitConfig controls per-client token buckets.
type RateLimitConfig struct {
	Max    int           `env:"MAX" default:"30" usage:"Max requests per window"`
	Window time.Duration `env:"WINDOW" default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `env:"ORIGINS" default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" default:"false" usage:"Allow credentials" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `env:"READINESS_DELAY" default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"3m" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform and legacy variable names.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "COLORMUSE",
		Files:     []string{"config.yaml", "/etc/colormuse/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps PORT and the unprefixed variable names used by
// earlier deployments onto empty settings.
func (c *Config) applyPlatformDefaults() {
	for name, dst := range map[string]*string{
		"PAYPAL_CLIENT_ID":     &c.PayPal.ClientID,
		"PAYPAL_CLIENT_SECRET": &c.PayPal.ClientSecret,
		"LULU_CLIENT_KEY":      &c.Lulu.ClientKey,
		"LULU_CLIENT_SECRET":   &c.Lulu.ClientSecret,
		"SMTP_SERVER":          &c.SMTP.Host,
		"SMTP_USERNAME":        &c.SMTP.Username,
		"SMTP_PASSWORD":        &c.SMTP.Password,
		"FROM_EMAIL":           &c.SMTP.From,
		"DATABASE_URL":         &c.Ledger.DatabaseURL,
		"REDIS_URL":            &c.Ledger.RedisURL,
	} {
		if *dst != "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("SMTP_PORT"); v != "" && c.SMTP.Port == 587 {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case LedgerAuto:
		switch {
		case c.Ledger.DatabaseURL != "":
			c.Ledger.Backend = LedgerPostgres
		case c.Ledger.RedisURL != "":
			c.Ledger.Backend = LedgerRedis
		default:
			c.Ledger.Backend = LedgerMemory
		}
	case LedgerMemory:
	case LedgerPostgres:
		if c.Ledger.DatabaseURL == "" {
			return errors.New("postgres ledger requires COLORMUSE_LEDGER_DATABASE_URL or DATABASE_URL")
		}
	case LedgerRedis:
		if c.Ledger.RedisURL == "" {
			return errors.New("redis ledger requires COLORMUSE_LEDGER_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	if c.Order.ExpectedAmount != "" {
		if _, err := decimal.NewFromString(c.Order.ExpectedAmount); err != nil {
			return errors.Wrapf(err, "parse expected amount %q", c.Order.ExpectedAmount)
		}
	}
	return nil
}

// Amount returns the configured payment amount, if any.
func (c OrderConfig) Amount() (decimal.Decimal, bool) {
	if c.ExpectedAmount == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(c.ExpectedAmount)
	return d, err == nil
}

// Store converts the section into archive settings.
func (c ArchiveConfig) Store() archive.Config {
	return archive.Config{
		Bucket:       c.Bucket,
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		UsePathStyle: c.UsePathStyle,
		Prefix:       c.Prefix,
	}
}
