package models

import "strings"

// DefaultTenant is the sentinel tenant used when a request arrives without an
// explicit tenant identifier. Mapping empty input to a fixed tenant (rather
// than rejecting it) keeps single-tenant deployments working with zero
// configuration.
const DefaultTenant TenantID = "default"

// TenantID is an opaque, normalized tenant identifier. It is the sole
// sharding key for every stateful structure in the runtime: registry buckets,
// budget trackers, and sandbox identity all key off it.
type TenantID string

// NormalizeTenantID canonicalizes a raw tenant identifier. Normalization is
// idempotent: the same raw input always yields the same TenantID, and
// normalizing an already-normalized value is a no-op. Empty or
// whitespace-only input maps to DefaultTenant.
func NormalizeTenantID(raw string) TenantID {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return DefaultTenant
	}
	return TenantID(normalized)
}

// String returns the tenant id as a plain string for logging and labels.
func (t TenantID) String() string {
	return string(t)
}
