package account

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry resolves account codes for the posting path. Lookups go through
// an optional TTL cache; the store stays the source of truth and writes
// made through the engine invalidate the cached copy.
type Registry struct {
	store Store
	cache *cache.Cache
}

// NewRegistry returns a Registry over s. A ttl of zero disables caching.
func NewRegistry(s Store, ttl time.Duration) *Registry {
	r := &Registry{store: s}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the account for code, or the store's not-found error.
// The returned value is a copy and may be modified by the caller.
func (r *Registry) Resolve(ctx context.Context, code string) (*Account, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(code); ok {
			a := *v.(*Account)
			return &a, nil
		}
	}

	a, err := r.store.GetAccount(ctx, code)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		cached := *a
		r.cache.SetDefault(code, &cached)
	}
	return a, nil
}

// IsActive reports whether the account exists and is active.
func (r *Registry) IsActive(ctx context.Context, code string) (bool, error) {
	a, err := r.Resolve(ctx, code)
	if err != nil {
		return false, err
	}
	return a.Active, nil
}

// Invalidate drops code from the cache.
func (r *Registry) Invalidate(code string) {
	if r.cache != nil {
		r.cache.Delete(code)
	}
}

// Flush drops every cached account.
func (r *Registry) Flush() {
	if r.cache != nil {
		r.cache.Flush()
	}
}
