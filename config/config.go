// Package config loads the settings shared by the ledger binaries: the
// store to open, logging, HTTP, billing limits, event publishing and the
// chart of accounts to seed.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGER_"

// Config represents the top-level ledger.yaml configuration.
type Config struct {
	Currency        string          `yaml:"currency" validate:"required,len=3,alpha"`
	AccountCacheTTL time.Duration   `yaml:"account_cache_ttl" validate:"gte=0"`
	Store           StoreConfig     `yaml:"store"`
	Log             LogConfig       `yaml:"log"`
	HTTP            HTTPConfig      `yaml:"http"`
	Billing         BillingConfig   `yaml:"billing"`
	Kafka           KafkaConfig     `yaml:"kafka"`
	Accounts        []AccountConfig `yaml:"accounts" validate:"dive"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite postgres mongo"`
	// DSN is a file path for sqlite, a connection URL for postgres and mongo.
	DSN string `yaml:"dsn" validate:"required_unless=Driver memory"`
	// Database names the mongo database.
	Database string `yaml:"database" validate:"required_if=Driver mongo"`
}

// LogConfig controls the slog handler built by Logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// HTTPConfig controls the API server started by `ledgerctl serve`.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	BasePath        string        `yaml:"base_path"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// BillingConfig bounds recurring billing runs.
type BillingConfig struct {
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
	RateLimit   float64       `yaml:"rate_limit" validate:"gte=0"`
	Burst       int           `yaml:"burst" validate:"gte=0"`
	MaxTries    uint          `yaml:"max_tries"`
	Backoff     time.Duration `yaml:"backoff" validate:"gte=0"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `yaml:"topic"`
}

// AccountConfig is one chart-of-accounts seed entry.
type AccountConfig struct {
	Code          string `yaml:"code" validate:"required"`
	Name          string `yaml:"name" validate:"required"`
	Description   string `yaml:"description"`
	Category      string `yaml:"category" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE asset liability equity income expense"`
	NormalBalance string `yaml:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	// Active defaults to true.
	Active *bool `yaml:"active"`
}

// Default returns a Config with sensible defaults: an in-memory store,
// info-level text logs and the ledger's default billing limits.
func Default() *Config {
	return &Config{
		Currency:        ledger.DefaultCurrency,
		AccountCacheTTL: ledger.DefaultAccountCacheTTL,
		Store:           StoreConfig{Driver: "memory"},
		Log:             LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Billing: BillingConfig{
			Concurrency: ledger.DefaultBillingConcurrency,
			MaxTries:    ledger.DefaultBillingMaxTries,
			Backoff:     ledger.DefaultBillingBackoff,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory, and LEDGER_* environment
// variables, in increasing precedence. ${VAR} references in the YAML are
// expanded. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := Parse([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg, keeping fields the document does not set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: config: %s", ledger.ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: config: %w", ledger.ErrInvalidInput, err)
	}
	return nil
}

// applyEnv overlays LEDGER_* variables read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}
	num := func(name string, dst *int) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
		return nil
	}

	str("CURRENCY", &c.Currency)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("STORE_DATABASE", &c.Store.Database)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("HTTP_BASE_PATH", &c.HTTP.BasePath)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	if v, ok := lookup(EnvPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "BILLING_RATE_LIMIT"); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sBILLING_RATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Billing.RateLimit = r
	}
	return errors.Join(
		dur("ACCOUNT_CACHE_TTL", &c.AccountCacheTTL),
		dur("BILLING_BACKOFF", &c.Billing.Backoff),
		num("BILLING_CONCURRENCY", &c.Billing.Concurrency),
		num("BILLING_BURST", &c.Billing.Burst),
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Logger builds the slog logger described by Log, writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LedgerOptions translates the engine settings into ledger options.
func (c *Config) LedgerOptions(logger *slog.Logger) []ledger.Option {
	return []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithCurrency(c.Currency),
		ledger.WithAccountCacheTTL(c.AccountCacheTTL),
		ledger.WithBillingConcurrency(c.Billing.Concurrency),
		ledger.WithBillingRateLimit(c.Billing.RateLimit, c.Billing.Burst),
		ledger.WithBillingRetry(c.Billing.MaxTries, c.Billing.Backoff),
	}
}

// ChartOfAccounts returns the configured seed accounts.
func (c *Config) ChartOfAccounts() ([]*account.Account, error) {
	out := make([]*account.Account, 0, len(c.Accounts))
	for _, ac := range c.Accounts {
		category, err := account.ParseCategory(ac.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err)
		}
		active := true
		if ac.Active != nil {
			active = *ac.Active
		}
		out = append(out, &account.Account{
			Code:          strings.TrimSpace(ac.Code),
			Name:          ac.Name,
			Description:   ac.Description,
			Category:      category,
			NormalBalance: ledger.Side(strings.ToUpper(ac.NormalBalance)),
			Active:        active,
		})
	}
	return out, nil
}
