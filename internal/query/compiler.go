package query

import (
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/security"
)

// Search-text pair every entity's indexable content is merged into.
const (
	FieldSearchDisplay = "searchDisplay"
	FieldSearchContent = "searchContent"
)

// Default highlight wrapper emitted when the caller does not override it.
const (
	DefaultHighlightPreTag  = `<span class="search-highlight">`
	DefaultHighlightPostTag = `</span>`
)

// aggregationTermCeiling bounds the bucket count of a terms aggregation.
const aggregationTermCeiling = 10000

// Compiler turns a declarative query request into an engine-native query.
// Compile is a pure transform: no I/O, no shared state, and the same input
// always yields the same compiled query.
type Compiler struct {
	policy *security.Policy
}

// NewCompiler creates a compiler that scopes queries through the given policy.
func NewCompiler(policy *security.Policy) *Compiler {
	return &Compiler{policy: policy}
}

// Compile validates and normalizes the request, resolves and
// security-filters the index targets, and emits the compiled query.
// skipSecurityCheck bypasses the capability check and the forced tenant
// clauses for trusted internal callers; scope and shared-configuration
// clauses still apply.
func (c *Compiler) Compile(caller domain.Caller, req *domain.QueryRequest, skipSecurityCheck bool) (*domain.CompiledQuery, error) {
	if req == nil || strings.TrimSpace(req.EntityName) == "" {
		return nil, apperrors.Validation("the entityName is not provided")
	}

	// An anonymous caller gets random identity so tenant filters match
	// nothing instead of everything.
	if caller.OrganizationID == "" {
		caller.OrganizationID = uuid.NewString()
	}
	if caller.UserID == "" {
		caller.UserID = uuid.NewString()
	}

	targets := []domain.IndexTarget{{EntityName: req.EntityName, EntityType: req.EntityType}}
	if !skipSecurityCheck {
		var err error
		targets, err = c.policy.FilterTargets(caller, targets)
		if err != nil {
			return nil, err
		}
	}

	indices := make([]string, len(targets))
	for i, t := range targets {
		indices[i] = t.Name()
	}

	// Aggregation and document listing are mutually exclusive modes.
	if req.Aggregate != "" {
		return &domain.CompiledQuery{
			Indices: indices,
			Body: map[string]any{
				"size": 0,
				"aggs": map[string]any{
					"list": map[string]any{
						"terms": map[string]any{
							"field": req.Aggregate,
							"size":  aggregationTermCeiling,
						},
					},
				},
			},
		}, nil
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	if pageSize > domain.MaxPageSize {
		pageSize = domain.MaxPageSize
	}

	stateCode := 0
	if req.StateCode != nil {
		stateCode = *req.StateCode
	}

	must := []any{}
	if req.Keywords != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  req.Keywords,
				"fields": []string{FieldSearchDisplay, FieldSearchContent},
			},
		})
	}

	filter := []any{
		map[string]any{"term": map[string]any{"stateCode": stateCode}},
	}
	filter = append(filter, identityClauses(req)...)
	filter = append(filter, categoryClauses(req.CategoryIDs)...)
	filter = appendClauses(filter, security.SharedConfigClauses(caller, req.EntityName))
	filter = appendClauses(filter, security.ScopeClauses(caller, req.Scope))
	if !skipSecurityCheck {
		filter = appendClauses(filter, security.SecurityClauses(caller, req.EntityName, req.Scope))
	}

	conditions, err := conditionClauses(req.Conditions)
	if err != nil {
		return nil, err
	}
	filter = append(filter, conditions...)

	body := map[string]any{
		"from": 0,
		"size": pageSize,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filter,
			},
		},
		"highlight": highlightSpec(req),
	}

	if projection := projectionFields(req.Attributes); projection != nil {
		body["_source"] = projection
	}

	if sortSpec := sortClauses(req); len(sortSpec) > 0 {
		body["sort"] = sortSpec
	}

	return &domain.CompiledQuery{Indices: indices, Body: body}, nil
}

// identityClauses builds the id/ids filters. An identifier that is present
// but empty is rewritten to a random, unmatchable value so malformed input
// yields an empty result set instead of an over-broad one.
func identityClauses(req *domain.QueryRequest) []any {
	var clauses []any

	if req.ID != nil {
		id := strings.TrimSpace(*req.ID)
		if id == "" {
			id = uuid.NewString()
		}
		clauses = append(clauses, map[string]any{"term": map[string]any{"id": id}})
	}

	if req.IDs != nil {
		ids := req.IDs
		if len(ids) == 0 {
			ids = []string{uuid.NewString()}
		}
		clauses = append(clauses, map[string]any{"terms": map[string]any{"id": ids}})
	}

	return clauses
}

// categoryClauses builds the category-membership filter: a record matches
// when it carries any of the requested categories.
func categoryClauses(categoryIDs []string) []any {
	if len(categoryIDs) == 0 {
		return nil
	}

	should := make([]any, len(categoryIDs))
	for i, id := range categoryIDs {
		should[i] = map[string]any{"term": map[string]any{"categoryIds": id}}
	}
	return []any{map[string]any{"bool": map[string]any{"should": should}}}
}

// conditionClauses renders the structured predicates through the operator
// table.
func conditionClauses(conditions []domain.Condition) ([]any, error) {
	var clauses []any
	for _, cond := range conditions {
		if cond.Attribute == "" && strings.ToUpper(cond.Op) != domain.OpSearch {
			return nil, apperrors.Validation("a condition is missing its attribute")
		}

		switch strings.ToUpper(cond.Op) {
		case domain.OpSearch:
			text, _ := cond.Value.(string)
			clauses = append(clauses, map[string]any{
				"bool": map[string]any{
					"should": []any{
						map[string]any{"match": map[string]any{FieldSearchDisplay: text}},
						map[string]any{"match": map[string]any{FieldSearchContent: text}},
					},
				},
			})
		case domain.OpContains:
			text, _ := cond.Value.(string)
			clauses = append(clauses, map[string]any{
				"wildcard": map[string]any{
					cond.Attribute: map[string]any{
						"value":            "*" + text + "*",
						"case_insensitive": true,
					},
				},
			})
		case domain.OpNe:
			clauses = append(clauses, map[string]any{
				"bool": map[string]any{
					"must_not": []any{
						map[string]any{"term": map[string]any{cond.Attribute: cond.Value}},
					},
				},
			})
		case domain.OpGt:
			clauses = append(clauses, rangeClause(cond.Attribute, "gt", cond.Value))
		case domain.OpGe:
			clauses = append(clauses, rangeClause(cond.Attribute, "gte", cond.Value))
		case domain.OpLt:
			clauses = append(clauses, rangeClause(cond.Attribute, "lt", cond.Value))
		case domain.OpLe:
			clauses = append(clauses, rangeClause(cond.Attribute, "lte", cond.Value))
		default: // OpEq and anything unrecognized render as exact match.
			clauses = append(clauses, map[string]any{
				"term": map[string]any{cond.Attribute: cond.Value},
			})
		}
	}
	return clauses, nil
}

func rangeClause(attribute, op string, value any) map[string]any {
	return map[string]any{
		"range": map[string]any{attribute: map[string]any{op: value}},
	}
}

// highlightSpec builds the highlight request over the two merged text fields.
func highlightSpec(req *domain.QueryRequest) map[string]any {
	preTag := req.HighlightPreTag
	if preTag == "" {
		preTag = DefaultHighlightPreTag
	}
	postTag := req.HighlightPostTag
	if postTag == "" {
		postTag = DefaultHighlightPostTag
	}

	fieldSpec := map[string]any{
		"pre_tags":  []string{preTag},
		"post_tags": []string{postTag},
	}
	return map[string]any{
		"require_field_match": true,
		"fields": []any{
			map[string]any{FieldSearchDisplay: fieldSpec},
			map[string]any{FieldSearchContent: fieldSpec},
		},
	}
}

// projectionFields returns the _source projection, or nil when the caller
// wants the whole document.
func projectionFields(attributes []string) []string {
	if len(attributes) == 0 {
		return nil
	}
	for _, a := range attributes {
		if a == "*" {
			return nil
		}
	}
	return attributes
}

// sortClauses builds the sort spec: relevance first whenever keywords are
// present, then the caller's order-by entries, ascending unless "desc".
func sortClauses(req *domain.QueryRequest) []any {
	var entries []any
	if req.Keywords != "" {
		entries = append(entries, map[string]any{"_score": map[string]any{"order": "desc"}})
	}

	for _, o := range req.OrderBy {
		direction := "asc"
		if strings.EqualFold(o.Direction, "desc") {
			direction = "desc"
		}
		entries = append(entries, map[string]any{o.Attribute: map[string]any{"order": direction}})
	}
	return entries
}

func appendClauses(filter []any, clauses []map[string]any) []any {
	for _, c := range clauses {
		filter = append(filter, c)
	}
	return filter
}
