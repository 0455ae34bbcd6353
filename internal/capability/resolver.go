// Package capability resolves and caches the list capabilities of admin
// users from static role policies.
package capability

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver with an in-memory cache.
type Resolver struct {
	evaluator  model.PolicyEvaluator
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver caching the results of evaluator.
func NewResolver(evaluator model.PolicyEvaluator, cfg config.CacheConfig) *Resolver {
	return &Resolver{
		evaluator:  evaluator,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// cacheKey includes the roles so that a token carrying new roles is not
// served the capabilities of the old ones.
func cacheKey(rctx *model.RequestContext) string {
	roles := slices.Clone(rctx.Roles)
	slices.Sort(roles)
	return ownerPrefix(rctx.SubjectID, rctx.TenantID) + strings.Join(roles, ",")
}

func ownerPrefix(subjectID, tenantID string) string {
	return tenantID + "/" + subjectID + "#"
}

// Resolve returns the capability set of rctx. Results are cached for the
// configured TTL; a zero TTL disables caching.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	if r.ttl <= 0 {
		return r.evaluator.ResolveCapabilities(rctx)
	}
	key := cacheKey(rctx)
	now := r.now()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && now.Before(entry.expires) {
		r.mu.RUnlock()
		return entry.caps, nil
	}
	r.mu.RUnlock()

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.maxEntries > 0 && len(r.cache) >= r.maxEntries {
		r.evictExpired(now)
		if len(r.cache) >= r.maxEntries {
			clear(r.cache)
		}
	}
	r.cache[key] = cacheEntry{caps: caps, expires: now.Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given user and tenant.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	prefix := ownerPrefix(subjectID, tenantID)
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

// Purge clears the whole cache. Policies call it after a reload.
func (r *Resolver) Purge() {
	r.mu.Lock()
	clear(r.cache)
	r.mu.Unlock()
}

func (r *Resolver) evictExpired(now time.Time) {
	for key, entry := range r.cache {
		if !now.Before(entry.expires) {
			delete(r.cache, key)
		}
	}
}
