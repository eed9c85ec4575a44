// Package registry implements the per-tenant store of configured provider
// clients. Buckets are created lazily on first access, shared read-only
// across every execution of a tenant, and mutated only under a per-tenant
// lock so concurrent rebuilds can never interleave a partial provider set.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/pkg/models"
)

// ErrProviderNotFound indicates the tenant has no client configured for the
// requested provider.
var ErrProviderNotFound = errors.New("provider not found")

// bucket is the per-tenant record of configured clients.
//
// version increases exactly once per successful structural mutation
// (add/remove/rebuild that changes the provider set) and never on read.
type bucket struct {
	mu      sync.RWMutex
	clients map[string]providers.Client
	version uint64
}

// Registry is the concurrency-safe store mapping tenant id to its bucket of
// provider clients. The bucket map is the only structure in the runtime
// mutated across concurrent executions of the same tenant.
type Registry struct {
	mu      sync.RWMutex
	buckets map[models.TenantID]*bucket
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{buckets: make(map[models.TenantID]*bucket)}
}

// getOrCreate returns the tenant's bucket, creating an empty one on first
// access. Unknown tenants are never an error.
func (r *Registry) getOrCreate(tenant models.TenantID) *bucket {
	r.mu.RLock()
	b := r.buckets[tenant]
	r.mu.RUnlock()
	if b != nil {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b = r.buckets[tenant]; b == nil {
		b = &bucket{clients: make(map[string]providers.Client)}
		r.buckets[tenant] = b
	}
	return b
}

// Client resolves the tenant's client for a provider. Resolution lazily
// creates the tenant's bucket, so an unknown tenant yields
// ErrProviderNotFound rather than a distinct error.
func (r *Registry) Client(tenant models.TenantID, provider string) (providers.Client, error) {
	b := r.getOrCreate(tenant)
	b.mu.RLock()
	defer b.mu.RUnlock()
	client, ok := b.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q for tenant %q", ErrProviderNotFound, provider, tenant)
	}
	return client, nil
}

// Register adds or replaces one client in the tenant's bucket. The version
// is bumped only when the provider set or the client handle actually
// changed.
func (r *Registry) Register(tenant models.TenantID, client providers.Client) {
	b := r.getOrCreate(tenant)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.clients[client.Name()]; ok && existing == client {
		return
	}
	b.clients[client.Name()] = client
	b.version++
}

// Remove deletes one provider from the tenant's bucket. Removing an absent
// provider is a no-op and does not bump the version.
func (r *Registry) Remove(tenant models.TenantID, provider string) {
	b := r.getOrCreate(tenant)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[provider]; !ok {
		return
	}
	delete(b.clients, provider)
	b.version++
}

// Rebuild replaces the tenant's provider set in place. The version is
// bumped only if the resulting provider name set differs structurally from
// the prior one; handing the registry the same set it already holds is a
// read in disguise and must not invalidate anything.
//
// The whole replacement happens under the bucket lock: a concurrent Rebuild
// for the same tenant can never leave a partial set visible.
func (r *Registry) Rebuild(tenant models.TenantID, clients []providers.Client) (changed bool) {
	b := r.getOrCreate(tenant)
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]providers.Client, len(clients))
	for _, c := range clients {
		next[c.Name()] = c
	}

	if sameProviderSet(b.clients, next) {
		// Same provider set: install the fresh handles without bumping
		// the version.
		b.clients = next
		return false
	}
	b.clients = next
	b.version++
	return true
}

// Teardown removes the tenant's bucket entirely. Buckets are never deleted
// implicitly; this is the explicit path for tenant offboarding.
func (r *Registry) Teardown(tenant models.TenantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, tenant)
}

// Version returns the tenant's bucket version. Reads never bump it.
func (r *Registry) Version(tenant models.TenantID) uint64 {
	b := r.getOrCreate(tenant)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Providers returns the sorted provider names configured for the tenant.
func (r *Registry) Providers(tenant models.TenantID) []string {
	b := r.getOrCreate(tenant)
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.clients))
	for name := range b.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clients returns the tenant's clients in provider-name order. The slice is
// a fresh copy; callers cannot mutate registry state through it.
func (r *Registry) Clients(tenant models.TenantID) []providers.Client {
	b := r.getOrCreate(tenant)
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.clients))
	for name := range b.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]providers.Client, 0, len(names))
	for _, name := range names {
		out = append(out, b.clients[name])
	}
	return out
}

// sameProviderSet compares two client maps structurally: the provider name
// set is the bucket's identity, so fresh client instances for the same
// providers are the same set. Reference comparison would bump the version
// on every config reload.
func sameProviderSet(a, b map[string]providers.Client) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}
