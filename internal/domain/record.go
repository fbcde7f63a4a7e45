package domain

import "strings"

// Record is a canonical document. Documents are schemaless beyond the core
// identity fields, so records stay dynamic while the request surface is typed.
type Record map[string]any

// StringField returns the named field as a string, or "" when absent or not
// a string.
func (r Record) StringField(name string) string {
	v, _ := r[name].(string)
	return v
}

// IndexTarget names one search index derived from an entity and an optional
// subtype.
type IndexTarget struct {
	EntityName string
	EntityType string
}

// Name returns the lowercase index name: "entityname" or
// "entityname_entitytype" when a subtype is present.
func (t IndexTarget) Name() string {
	if t.EntityType != "" {
		return strings.ToLower(t.EntityName + "_" + t.EntityType)
	}
	return strings.ToLower(t.EntityName)
}

// ParseIndexName splits an index name back into entity name and subtype.
func ParseIndexName(name string) IndexTarget {
	entity, subtype, _ := strings.Cut(name, "_")
	return IndexTarget{EntityName: entity, EntityType: subtype}
}

// CompiledQuery is the engine-native query produced by the compiler: the
// resolved index targets plus the query body in the engine's DSL.
type CompiledQuery struct {
	Indices []string       `json:"index"`
	Body    map[string]any `json:"body"`
}

// SearchHit is one raw engine hit.
type SearchHit struct {
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Highlight map[string][]string `json:"highlight,omitempty"`
	Source    Record              `json:"source"`
}

// SearchResult is the raw engine response.
type SearchResult struct {
	Total        int
	Hits         []SearchHit
	Aggregations map[string]int
}

// QueryResult is the fused response returned to callers: documents with
// relevance metadata attached.
type QueryResult struct {
	Total        int            `json:"total"`
	Data         []Record       `json:"data"`
	Aggregations map[string]int `json:"aggregations,omitempty"`
}
