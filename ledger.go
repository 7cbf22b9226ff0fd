package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/plugin"
	"github.com/rentbook/ledger/store"
)

// Defaults applied by New.
const (
	DefaultCurrency           = "usd"
	DefaultAccountCacheTTL    = 30 * time.Second
	DefaultBillingConcurrency = 8
	DefaultBillingMaxTries    = 4
	DefaultBillingBackoff     = 100 * time.Millisecond
)

// Ledger is the accounting engine. It validates and commits postings,
// voids groups, derives balances, runs recurring billing and audits the
// journal. All methods are safe for concurrent use.
type Ledger struct {
	store    store.Store
	accounts *account.Registry
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	// Configuration
	currency           string
	accountCacheTTL    time.Duration
	billingConcurrency int
	billingLimiter     *rate.Limiter
	billingMaxTries    uint
	billingBackoff     time.Duration

	definitionLocks keyedMutex
}

// New creates a new Ledger over s.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		now:                time.Now,
		currency:           DefaultCurrency,
		accountCacheTTL:    DefaultAccountCacheTTL,
		billingConcurrency: DefaultBillingConcurrency,
		billingMaxTries:    DefaultBillingMaxTries,
		billingBackoff:     DefaultBillingBackoff,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.accounts = account.NewRegistry(s, l.accountCacheTTL)
	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCurrency sets the single ledger currency. Postings in any other
// currency fail with ErrCurrencyMismatch.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = strings.ToLower(currency)
		}
	}
}

// WithClock replaces the time source used for timestamps and default
// effective dates.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithAccountCacheTTL sets how long resolved accounts are cached. Zero
// disables the cache.
func WithAccountCacheTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.accountCacheTTL = ttl
	}
}

// WithBillingConcurrency bounds how many definitions a billing run
// processes at once.
func WithBillingConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.billingConcurrency = n
		}
	}
}

// WithBillingRateLimit caps billing postings at r per second with the
// given burst. A zero rate removes the cap.
func WithBillingRateLimit(r float64, burst int) Option {
	return func(l *Ledger) {
		if r <= 0 {
			l.billingLimiter = nil
			return
		}
		l.billingLimiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
	}
}

// WithBillingRetry sets how many times a billing item is attempted when
// storage is unavailable, and the first backoff interval.
func WithBillingRetry(maxTries uint, initial time.Duration) Option {
	return func(l *Ledger) {
		if maxTries > 0 {
			l.billingMaxTries = maxTries
		}
		if initial > 0 {
			l.billingBackoff = initial
		}
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"currency", l.currency,
		"account_cache_ttl", l.accountCacheTTL,
		"billing_concurrency", l.billingConcurrency,
		"plugins", l.plugins.Count(),
	)
	return nil
}

// Stop notifies plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Currency returns the ledger currency.
func (l *Ledger) Currency() string { return l.currency }

// Ping checks that the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

func (l *Ledger) clock() time.Time { return l.now().UTC() }

// ──────────────────────────────────────────────────
// Request context
// ──────────────────────────────────────────────────

type actorKey struct{}

// WithActor returns a context carrying the identity recorded on entries
// posted or voided under it.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}
