package extension

import (
	"time"

	ledger "github.com/rentbook/ledger"
	"github.com/rentbook/ledger/plugin"
	"github.com/rentbook/ledger/store"
)

// Option configures the Ledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine. It takes precedence over
// the configured store driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a ledger.Option through to the underlying engine.
func WithLedgerOption(opt ledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, ledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP API from being provided.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for ledger routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithAccountCacheTTL sets the chart-of-accounts cache duration.
func WithAccountCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.AccountCacheTTL = d }
}

// WithBillingConcurrency bounds parallel charge postings per billing run.
func WithBillingConcurrency(n int) Option {
	return func(e *Extension) { e.config.BillingConcurrency = n }
}

// WithStoreDriver selects the backend opened on Register when WithStore
// was not used.
func WithStoreDriver(driver, dsn, database string) Option {
	return func(e *Extension) {
		e.config.Store = StoreConfig{Driver: driver, DSN: dsn, Database: database}
	}
}
