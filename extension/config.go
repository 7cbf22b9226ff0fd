package extension

import (
	"time"

	ledger "github.com/rentbook/ledger"
	"github.com/rentbook/ledger/config"
)

// Config holds the Ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.ledger" or "ledger" keys).
type Config struct {
	// DisableRoutes prevents the HTTP API from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for ledger routes (default: "/ledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Currency is the ledger's single currency (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// AccountCacheTTL controls how long chart-of-accounts lookups are
	// cached in-process (default: 30s).
	AccountCacheTTL time.Duration `json:"account_cache_ttl" mapstructure:"account_cache_ttl" yaml:"account_cache_ttl"`

	// BillingConcurrency bounds parallel charge postings per run (default: 8).
	BillingConcurrency int `json:"billing_concurrency" mapstructure:"billing_concurrency" yaml:"billing_concurrency"`

	// BillingRateLimit caps charge postings per second. Zero means unlimited.
	BillingRateLimit float64 `json:"billing_rate_limit" mapstructure:"billing_rate_limit" yaml:"billing_rate_limit"`

	// BillingMaxTries is the attempt budget for retryable posting failures.
	BillingMaxTries uint `json:"billing_max_tries" mapstructure:"billing_max_tries" yaml:"billing_max_tries"`

	// Store selects the backend when none was given with WithStore.
	Store StoreConfig `json:"store" mapstructure:"store" yaml:"store"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// StoreConfig names a store backend and how to reach it.
type StoreConfig struct {
	Driver   string `json:"driver" mapstructure:"driver" yaml:"driver"`
	DSN      string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`
	Database string `json:"database" mapstructure:"database" yaml:"database"`
}

func (s StoreConfig) toConfig() config.StoreConfig {
	return config.StoreConfig{Driver: s.Driver, DSN: s.DSN, Database: s.Database}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:           "/ledger",
		Currency:           ledger.DefaultCurrency,
		AccountCacheTTL:    ledger.DefaultAccountCacheTTL,
		BillingConcurrency: ledger.DefaultBillingConcurrency,
		BillingMaxTries:    ledger.DefaultBillingMaxTries,
		Store:              StoreConfig{Driver: "memory"},
	}
}
