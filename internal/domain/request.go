package domain

import (
	"encoding/json"
	"strings"
)

// Scope is a caller-selected visibility filter applied in addition to
// tenant security, never instead of it.
type Scope string

const (
	ScopeGlobal        Scope = "global"
	ScopeMine          Scope = "mine"
	ScopeGlobalAndMine Scope = "global-and-mine"
	ScopeOrganization  Scope = "organization"
)

// Reserved entity names with special security treatment.
const (
	// EntitySecret is the only entity exempt from the forced organization
	// filter; secrets are scoped by the caller explicitly.
	EntitySecret = "Secret"
	// EntityDomain records never enter the search index.
	EntityDomain = "Domain"
)

// SharedConfigEntities are entities holding per-solution shared configuration.
// Queries against them always carry an owner-equals-solution filter regardless
// of the requested scope, so one tenant's configuration never leaks to another.
var SharedConfigEntities = map[string]bool{
	"SolutionDashboard":  true,
	"Site":               true,
	"Localization":       true,
	"SolutionDefinition": true,
}

// Paging bounds for compiled queries.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Caller identifies the security principal a request runs as.
type Caller struct {
	UserID          string `json:"userId"`
	OrganizationID  string `json:"organizationId"`
	SolutionID      string `json:"solutionId"`
	SolutionOwnerID string `json:"solutionOwnerId"`
}

// Condition is one structured predicate of a query request.
type Condition struct {
	Attribute string `json:"attribute"`
	Op        string `json:"op"`
	Value     any    `json:"value"`
}

// Condition operators. Anything else renders as an exact-match term.
const (
	OpEq       = "EQ"
	OpNe       = "NE"
	OpGt       = "GT"
	OpGe       = "GE"
	OpLt       = "LT"
	OpLe       = "LE"
	OpContains = "CONTAINS"
	OpSearch   = "SEARCH"
)

// OrderBy is one sort entry: an attribute and a direction.
type OrderBy struct {
	Attribute string `json:"attribute"`
	Direction string `json:"type"`
}

// OrderByList accepts either a structured array or the comma-separated
// shorthand ("modifiedOn desc") when decoding JSON.
type OrderByList []OrderBy

func (l *OrderByList) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		*l = ParseOrderBy(shorthand)
		return nil
	}

	var entries []OrderBy
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = entries
	return nil
}

// ParseOrderBy parses the shorthand form. Commas and repeated whitespace are
// treated as separators; an unrecognized direction token means ascending.
func ParseOrderBy(s string) OrderByList {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) == 0 {
		return nil
	}

	direction := "asc"
	if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
		direction = "desc"
	}
	return OrderByList{{Attribute: fields[0], Direction: direction}}
}

// QueryRequest is the caller-supplied, declarative search intent.
//
// ID distinguishes "absent" (nil) from "present but empty" (pointer to "");
// the latter must compile to a query matching nothing. The same applies to a
// present-but-empty IDs array.
type QueryRequest struct {
	EntityName string `json:"entityName" validate:"required"`
	EntityType string `json:"entityType,omitempty"`

	ID  *string  `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`

	Keywords    string      `json:"keywords,omitempty"`
	Attributes  []string    `json:"attributes,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	CategoryIDs []string    `json:"categoryIds,omitempty"`

	Scope     Scope       `json:"scope,omitempty" validate:"omitempty,oneof=global mine global-and-mine organization"`
	StateCode *int        `json:"stateCode,omitempty"`
	PageSize  int         `json:"pageSize,omitempty" validate:"omitempty,gte=0"`
	OrderBy   OrderByList `json:"orderBy,omitempty"`
	Aggregate string      `json:"aggregate,omitempty"`

	HighlightPreTag  string `json:"highlightPreTag,omitempty"`
	HighlightPostTag string `json:"highlightPostTag,omitempty"`
}
