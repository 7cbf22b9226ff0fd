package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches events to the ones
// implementing each hook. Hook lists are cached at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onGroupPosted         []OnGroupPosted
	onPostingReplayed     []OnPostingReplayed
	onPostingRejected     []OnPostingRejected
	onGroupVoided         []OnGroupVoided
	onBillingRunCompleted []OnBillingRunCompleted
	onIntegrityChecked    []OnIntegrityChecked
	onAccountCreated      []OnAccountCreated
	onAccountUpdated      []OnAccountUpdated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnGroupPosted); ok {
		r.onGroupPosted = append(r.onGroupPosted, v)
		hooks = append(hooks, "OnGroupPosted")
	}
	if v, ok := p.(OnPostingReplayed); ok {
		r.onPostingReplayed = append(r.onPostingReplayed, v)
		hooks = append(hooks, "OnPostingReplayed")
	}
	if v, ok := p.(OnPostingRejected); ok {
		r.onPostingRejected = append(r.onPostingRejected, v)
		hooks = append(hooks, "OnPostingRejected")
	}
	if v, ok := p.(OnGroupVoided); ok {
		r.onGroupVoided = append(r.onGroupVoided, v)
		hooks = append(hooks, "OnGroupVoided")
	}
	if v, ok := p.(OnBillingRunCompleted); ok {
		r.onBillingRunCompleted = append(r.onBillingRunCompleted, v)
		hooks = append(hooks, "OnBillingRunCompleted")
	}
	if v, ok := p.(OnIntegrityChecked); ok {
		r.onIntegrityChecked = append(r.onIntegrityChecked, v)
		hooks = append(hooks, "OnIntegrityChecked")
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
		hooks = append(hooks, "OnAccountCreated")
	}
	if v, ok := p.(OnAccountUpdated); ok {
		r.onAccountUpdated = append(r.onAccountUpdated, v)
		hooks = append(hooks, "OnAccountUpdated")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)
	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitGroupPosted emits a posting group committed event.
func (r *Registry) EmitGroupPosted(ctx context.Context, g *journal.PostingGroup) {
	emit(ctx, r, "OnGroupPosted", snapshot(r, &r.onGroupPosted), func(p OnGroupPosted) error {
		return p.OnGroupPosted(ctx, g)
	})
}

// EmitPostingReplayed emits an idempotent replay event.
func (r *Registry) EmitPostingReplayed(ctx context.Context, g *journal.PostingGroup) {
	emit(ctx, r, "OnPostingReplayed", snapshot(r, &r.onPostingReplayed), func(p OnPostingReplayed) error {
		return p.OnPostingReplayed(ctx, g)
	})
}

// EmitPostingRejected emits a rejected posting event.
func (r *Registry) EmitPostingRejected(ctx context.Context, idempotencyKey string, cause error) {
	emit(ctx, r, "OnPostingRejected", snapshot(r, &r.onPostingRejected), func(p OnPostingRejected) error {
		return p.OnPostingRejected(ctx, idempotencyKey, cause)
	})
}

// EmitGroupVoided emits a void event.
func (r *Registry) EmitGroupVoided(ctx context.Context, res *journal.VoidResult) {
	emit(ctx, r, "OnGroupVoided", snapshot(r, &r.onGroupVoided), func(p OnGroupVoided) error {
		return p.OnGroupVoided(ctx, res)
	})
}

// EmitBillingRunCompleted emits a billing cycle summary event.
func (r *Registry) EmitBillingRunCompleted(ctx context.Context, report *recurring.RunReport, elapsed time.Duration) {
	emit(ctx, r, "OnBillingRunCompleted", snapshot(r, &r.onBillingRunCompleted), func(p OnBillingRunCompleted) error {
		return p.OnBillingRunCompleted(ctx, report, elapsed)
	})
}

// EmitIntegrityChecked emits an integrity check event.
func (r *Registry) EmitIntegrityChecked(ctx context.Context, report *journal.IntegrityReport) {
	emit(ctx, r, "OnIntegrityChecked", snapshot(r, &r.onIntegrityChecked), func(p OnIntegrityChecked) error {
		return p.OnIntegrityChecked(ctx, report)
	})
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountCreated", snapshot(r, &r.onAccountCreated), func(p OnAccountCreated) error {
		return p.OnAccountCreated(ctx, a)
	})
}

// EmitAccountUpdated emits an account updated event.
func (r *Registry) EmitAccountUpdated(ctx context.Context, before, after *account.Account) {
	emit(ctx, r, "OnAccountUpdated", snapshot(r, &r.onAccountUpdated), func(p OnAccountUpdated) error {
		return p.OnAccountUpdated(ctx, before, after)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls fn for each plugin in turn. Failures are logged and never
// reach the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the posting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
