package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
)

func testCaller() domain.Caller {
	return domain.Caller{
		UserID:         "user-1",
		OrganizationID: "org-1",
		SolutionID:     "sol-1",
	}
}

func TestFilterTargets_KeepsReadableTargets(t *testing.T) {
	policy := NewPolicy(AuthorizerFunc(func(_ domain.Caller, entityName, _ string) bool {
		return entityName == "Article"
	}))

	targets, err := policy.FilterTargets(testCaller(), []domain.IndexTarget{
		{EntityName: "Article"},
		{EntityName: "Invoice"},
	})

	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Article", targets[0].EntityName)
}

func TestFilterTargets_AllDeniedIsForbidden(t *testing.T) {
	policy := NewPolicy(AuthorizerFunc(func(domain.Caller, string, string) bool { return false }))

	targets, err := policy.FilterTargets(testCaller(), []domain.IndexTarget{{EntityName: "Invoice"}})

	assert.Nil(t, targets)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestScopeClauses(t *testing.T) {
	caller := testCaller()

	tests := []struct {
		name  string
		scope domain.Scope
		want  []map[string]any
	}{
		{
			name:  "global",
			scope: domain.ScopeGlobal,
			want:  []map[string]any{{"term": map[string]any{"isGlobal": true}}},
		},
		{
			name:  "mine",
			scope: domain.ScopeMine,
			want:  []map[string]any{{"term": map[string]any{"ownedBy": "user-1"}}},
		},
		{
			name:  "organization",
			scope: domain.ScopeOrganization,
			want:  []map[string]any{{"term": map[string]any{"organizationId": "org-1"}}},
		},
		{
			name:  "unset",
			scope: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScopeClauses(caller, tt.scope))
		})
	}
}

func TestScopeClauses_GlobalAndMine(t *testing.T) {
	clauses := ScopeClauses(testCaller(), domain.ScopeGlobalAndMine)

	require.Len(t, clauses, 1)
	should := clauses[0]["bool"].(map[string]any)["should"].([]any)
	assert.Len(t, should, 2)
}

func TestSecurityClauses_DefaultPinsOrganization(t *testing.T) {
	clauses := SecurityClauses(testCaller(), "Article", "")

	assert.Equal(t, []map[string]any{
		{"term": map[string]any{"organizationId": "org-1"}},
	}, clauses)
}

func TestSecurityClauses_SecretIsExempt(t *testing.T) {
	assert.Nil(t, SecurityClauses(testCaller(), domain.EntitySecret, ""))
}

func TestSecurityClauses_OwnerScopesSkipOrganizationFilter(t *testing.T) {
	for _, scope := range []domain.Scope{domain.ScopeGlobal, domain.ScopeMine, domain.ScopeGlobalAndMine} {
		assert.Nil(t, SecurityClauses(testCaller(), "Article", scope), string(scope))
	}
}

func TestSharedConfigClauses(t *testing.T) {
	caller := testCaller()

	for entity := range domain.SharedConfigEntities {
		clauses := SharedConfigClauses(caller, entity)
		assert.Equal(t, []map[string]any{
			{"term": map[string]any{"ownerId": "sol-1"}},
		}, clauses, entity)
	}

	assert.Nil(t, SharedConfigClauses(caller, "Article"))
}
