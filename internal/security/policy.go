package security

import (
	"fmt"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
)

// Authorizer is the external capability check the policy engine consults for
// each candidate index target.
type Authorizer interface {
	CanRead(caller domain.Caller, entityName, entityType string) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(caller domain.Caller, entityName, entityType string) bool

func (f AuthorizerFunc) CanRead(caller domain.Caller, entityName, entityType string) bool {
	return f(caller, entityName, entityType)
}

// AllowAll grants every read. Used for trusted internal callers and tests.
var AllowAll = AuthorizerFunc(func(domain.Caller, string, string) bool { return true })

// Policy decides which index targets a caller may read and which filter
// clauses its context forces onto a query.
type Policy struct {
	auth Authorizer
}

// NewPolicy creates a policy engine backed by the given authorizer.
func NewPolicy(auth Authorizer) *Policy {
	return &Policy{auth: auth}
}

// FilterTargets drops every target the caller may not read. An empty result
// is a permission failure, never a silent match-nothing query.
func (p *Policy) FilterTargets(caller domain.Caller, targets []domain.IndexTarget) ([]domain.IndexTarget, error) {
	allowed := make([]domain.IndexTarget, 0, len(targets))
	for _, t := range targets {
		if p.auth.CanRead(caller, t.EntityName, t.EntityType) {
			allowed = append(allowed, t)
		}
	}

	if len(allowed) == 0 {
		return nil, apperrors.Forbidden(
			fmt.Sprintf("the caller may not read any index for entity %q", targets[0].EntityName))
	}
	return allowed, nil
}

// ScopeClauses returns the filter clauses a scope selection adds to a query.
// mine/global/global-and-mine replace the organization filter; any other
// value adds nothing here and falls through to the forced organization filter
// in SecurityClauses.
func ScopeClauses(caller domain.Caller, scope domain.Scope) []map[string]any {
	switch scope {
	case domain.ScopeGlobal:
		return []map[string]any{
			{"term": map[string]any{"isGlobal": true}},
		}
	case domain.ScopeMine:
		return []map[string]any{
			{"term": map[string]any{"ownedBy": caller.UserID}},
		}
	case domain.ScopeGlobalAndMine:
		return []map[string]any{
			{"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"ownedBy": caller.UserID}},
					map[string]any{"term": map[string]any{"isGlobal": true}},
				},
			}},
		}
	case domain.ScopeOrganization:
		return []map[string]any{
			{"term": map[string]any{"organizationId": caller.OrganizationID}},
		}
	default:
		return nil
	}
}

// SecurityClauses returns the always-additive tenant isolation clauses.
// Every entity except the reserved secret store is pinned to the caller's
// organization unless the caller chose an owner-based scope, which is
// mutually exclusive with the organization filter.
func SecurityClauses(caller domain.Caller, entityName string, scope domain.Scope) []map[string]any {
	if entityName == domain.EntitySecret {
		return nil
	}

	switch scope {
	case domain.ScopeGlobal, domain.ScopeMine, domain.ScopeGlobalAndMine:
		// Handled by ScopeClauses.
		return nil
	default:
		return []map[string]any{
			{"term": map[string]any{"organizationId": caller.OrganizationID}},
		}
	}
}

// SharedConfigClauses pins queries against shared-configuration entities to
// the owning solution regardless of the requested scope.
func SharedConfigClauses(caller domain.Caller, entityName string) []map[string]any {
	if !domain.SharedConfigEntities[entityName] {
		return nil
	}
	return []map[string]any{
		{"term": map[string]any{"ownerId": caller.SolutionID}},
	}
}
