// Package auth supplies the authorization read path for the runtime: whether
// a tenant may use a provider, and how tenant identity is resolved from
// bearer tokens. Storage of grants is a collaborator concern; this package
// only reads.
package auth

import (
	"context"
	"errors"

	"github.com/haasonsaas/conduit/pkg/models"
)

// ErrUnauthorized is returned when a tenant is not authorized for a provider.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer answers whether a tenant may invoke tools on a provider.
//
// Implementations must be safe for concurrent use: the dispatcher consults
// the authorizer on every provider-touching operation across many tenants.
type Authorizer interface {
	// Authorized reports whether the tenant may use the provider. An error
	// indicates the authorization source itself failed, not a denial.
	Authorized(ctx context.Context, tenant models.TenantID, provider string) (bool, error)
}

// AllowAll authorizes every tenant for every provider. Intended for
// single-tenant deployments and tests.
type AllowAll struct{}

// Authorized always returns true.
func (AllowAll) Authorized(context.Context, models.TenantID, string) (bool, error) {
	return true, nil
}

// Static authorizes tenants from a fixed grant table, typically loaded from
// configuration. The zero value denies everything.
type Static struct {
	grants map[models.TenantID]map[string]bool
}

// NewStatic builds a static authorizer from tenant -> provider names.
// Tenant ids are normalized; provider names are taken as-is.
func NewStatic(grants map[string][]string) *Static {
	table := make(map[models.TenantID]map[string]bool, len(grants))
	for rawTenant, providers := range grants {
		tenant := models.NormalizeTenantID(rawTenant)
		set := make(map[string]bool, len(providers))
		for _, p := range providers {
			set[p] = true
		}
		table[tenant] = set
	}
	return &Static{grants: table}
}

// Authorized reports whether the grant table contains the tenant/provider pair.
func (s *Static) Authorized(_ context.Context, tenant models.TenantID, provider string) (bool, error) {
	if s == nil || s.grants == nil {
		return false, nil
	}
	return s.grants[tenant][provider], nil
}
