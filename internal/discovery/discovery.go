// Package discovery lets a planning loop find tools without holding every
// schema in working state. Inventory listings return the cheap summary
// tier; targeted search returns full descriptors, schemas included, for
// the few tools that actually matched.
package discovery

import (
	"sort"
	"strings"

	"github.com/haasonsaas/conduit/internal/registry"
	"github.com/haasonsaas/conduit/pkg/models"
)

// DefaultSearchLimit caps search results when the caller does not.
const DefaultSearchLimit = 10

// Service answers inventory and search queries against a tenant's
// registered providers. It holds no state of its own; every query reads
// the registry fresh so rebuilds are visible immediately.
type Service struct {
	registry *registry.Registry
}

// NewService creates a discovery service over the registry.
func NewService(reg *registry.Registry) *Service {
	return &Service{registry: reg}
}

// ListProviders returns the tenant's provider inventory: provider names and
// tool names only, never schemas. An empty inventory is a valid answer for
// a tenant with nothing configured.
func (s *Service) ListProviders(tenant models.TenantID) []models.ProviderSummary {
	clients := s.registry.Clients(tenant)
	out := make([]models.ProviderSummary, 0, len(clients))
	for _, client := range clients {
		specs := client.Tools()
		names := make([]string, 0, len(specs))
		for _, spec := range specs {
			names = append(names, spec.Name)
		}
		sort.Strings(names)
		out = append(out, models.ProviderSummary{
			Provider: client.Name(),
			Tools:    names,
		})
	}
	return out
}

// Match is one search hit with its relevance score.
type Match struct {
	Descriptor models.ToolDescriptor
	Score      float64
}

// Search scores the tenant's tools against a free-text query and returns
// the best matches as full descriptors. Scoring weights an exact tool-name
// hit highest, a hit in the qualified name next, and description keyword
// overlap lowest. Results are ordered by descending score, ties broken by
// qualified name, and capped at limit (DefaultSearchLimit when limit is
// not positive).
func (s *Service) Search(tenant models.TenantID, query string, limit int) []Match {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var matches []Match
	for _, client := range s.registry.Clients(tenant) {
		provider := client.Name()
		for _, spec := range client.Tools() {
			desc := models.ToolDescriptor{
				Provider:      provider,
				Tool:          spec.Name,
				QualifiedName: provider + "." + spec.Name,
				Description:   spec.Description,
				InputSchema:   spec.InputSchema,
				OutputFields:  spec.OutputFields,
			}
			if score := scoreDescriptor(desc, terms); score > 0 {
				matches = append(matches, Match{Descriptor: desc, Score: score})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Descriptor.QualifiedName < matches[j].Descriptor.QualifiedName
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// scoreDescriptor sums per-term relevance: 3.0 for a term contained in the
// tool name, 2.0 for the qualified name, 1.0 per description token match.
func scoreDescriptor(desc models.ToolDescriptor, terms []string) float64 {
	name := strings.ToLower(desc.Tool)
	qualified := strings.ToLower(desc.QualifiedName)
	descTokens := tokenize(desc.Description)

	var score float64
	for _, term := range terms {
		switch {
		case strings.Contains(name, term):
			score += 3.0
		case strings.Contains(qualified, term):
			score += 2.0
		}
		for _, token := range descTokens {
			if token == term {
				score += 1.0
				break
			}
		}
	}
	return score
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character noise.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
