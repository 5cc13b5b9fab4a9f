package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultConfigID is the ConfigID used for the built-in fallback quota.
const DefaultConfigID = "default"

const (
	defaultMaxRequests   = 100
	defaultWindowSeconds = 60
)

// QuotaSource reads a tenant's quota configuration records. It is typically
// backed by the configuration database.
type QuotaSource interface {
	// ActiveQuotas returns the tenant's active quota configs ordered by
	// creation time ascending. An empty slice is not an error.
	ActiveQuotas(ctx context.Context, tenantID string) ([]Quota, error)
}

// QuotaResolver maps a tenant to the single quota governing its counters.
type QuotaResolver interface {
	Resolve(ctx context.Context, tenantID string) (Quota, error)
}

// Resolver picks the earliest-created active config for a tenant, falling
// back to a built-in default of 100 requests per 60 second window when the
// tenant has none. A tenant with several active configs is resolved by
// creation order only; there is no per-resource config selection.
type Resolver struct {
	source   QuotaSource
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	quota   Quota
	expires time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL enables caching of resolved quotas for ttl. The configuration
// store is read-mostly, so a short TTL trades bounded staleness (a config
// edit may take up to ttl to apply) for one less round trip per check.
// Zero disables the cache.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cacheTTL = ttl
	}
}

// NewResolver builds a Resolver over source.
func NewResolver(source QuotaSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source: source,
		cache:  make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the quota governing tenantID. It never fails for a tenant
// without configs; whether the tenant exists at all is the caller's concern.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (Quota, error) {
	if r.cacheTTL > 0 {
		if quota, ok := r.cached(tenantID); ok {
			return quota, nil
		}
	}

	quotas, err := r.source.ActiveQuotas(ctx, tenantID)
	if err != nil {
		return Quota{}, fmt.Errorf("load quota configs: %w", err)
	}

	quota := DefaultQuota(tenantID)
	if len(quotas) > 0 {
		quota = quotas[0]
	}

	if r.cacheTTL > 0 {
		r.store(tenantID, quota)
	}
	return quota, nil
}

// DefaultQuota is the transient fallback applied to tenants with no active
// quota configs. It is never persisted.
func DefaultQuota(tenantID string) Quota {
	return Quota{
		ConfigID:      DefaultConfigID,
		TenantID:      tenantID,
		MaxRequests:   defaultMaxRequests,
		WindowSeconds: defaultWindowSeconds,
	}
}

func (r *Resolver) cached(tenantID string) (Quota, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[tenantID]
	if !ok || time.Now().After(entry.expires) {
		delete(r.cache, tenantID)
		return Quota{}, false
	}
	return entry.quota, true
}

func (r *Resolver) store(tenantID string, quota Quota) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[tenantID] = cacheEntry{quota: quota, expires: time.Now().Add(r.cacheTTL)}
}
