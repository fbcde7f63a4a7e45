package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/utafrali/recordsearch/internal/domain"
)

// Engine is an in-memory SearchEngine for development and tests. It
// interprets the subset of the query DSL the compiler emits: bool queries
// with term/terms/range/wildcard/match/multi_match clauses, terms
// aggregations, sort, paging, and source projection.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]map[string]domain.Record
	schemas map[string]map[string]string
}

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		indices: make(map[string]map[string]domain.Record),
		schemas: make(map[string]map[string]string),
	}
}

func (e *Engine) Execute(_ context.Context, query *domain.CompiledQuery) (*domain.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var docs []domain.Record
	for _, index := range query.Indices {
		for _, doc := range e.indices[index] {
			docs = append(docs, doc)
		}
	}

	if aggs, ok := query.Body["aggs"].(map[string]any); ok {
		return aggregate(docs, aggs), nil
	}

	type scored struct {
		doc   domain.Record
		score float64
	}

	var matches []scored
	boolQuery := boolFromBody(query.Body)
	for _, doc := range docs {
		ok, score := evalBool(doc, boolQuery)
		if ok {
			matches = append(matches, scored{doc: doc, score: score})
		}
	}

	sortEntries, _ := query.Body["sort"].([]any)
	sort.SliceStable(matches, func(i, j int) bool {
		for _, entry := range sortEntries {
			for attr, spec := range entry.(map[string]any) {
				desc := false
				if m, ok := spec.(map[string]any); ok {
					desc = m["order"] == "desc"
				}
				var a, b any
				if attr == "_score" {
					a, b = matches[i].score, matches[j].score
				} else {
					a, b = matches[i].doc[attr], matches[j].doc[attr]
				}
				cmp := compareValues(a, b)
				if cmp == 0 {
					continue
				}
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		// Default engine order: relevance descending.
		return matches[i].score > matches[j].score
	})

	from, _ := query.Body["from"].(int)
	size, ok := query.Body["size"].(int)
	if !ok {
		size = len(matches)
	}

	total := len(matches)
	if from > len(matches) {
		from = len(matches)
	}
	end := from + size
	if end > len(matches) {
		end = len(matches)
	}

	projection, _ := query.Body["_source"].([]string)
	highlight, _ := query.Body["highlight"].(map[string]any)
	keywords := keywordsFromBody(query.Body)

	result := &domain.SearchResult{Total: total}
	for _, m := range matches[from:end] {
		hit := domain.SearchHit{
			ID:     m.doc.StringField("id"),
			Score:  m.score,
			Source: project(m.doc, projection),
		}
		if keywords != "" && highlight != nil {
			hit.Highlight = highlightFragments(m.doc, keywords, highlight)
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

func (e *Engine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

func (e *Engine) GetSchema(_ context.Context, name string) (map[string]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	schema, ok := e.schemas[name]
	if !ok {
		return nil, fmt.Errorf("memory engine: index %s does not exist", name)
	}
	return schema, nil
}

func (e *Engine) CreateIndex(_ context.Context, name string, mapping map[string]any) error {
	schema := make(map[string]string)
	if mappings, ok := mapping["mappings"].(map[string]any); ok {
		if props, ok := mappings["properties"].(map[string]any); ok {
			for field, spec := range props {
				if m, ok := spec.(map[string]any); ok {
					if t, ok := m["type"].(string); ok {
						schema[field] = t
					}
				}
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.indices[name] = make(map[string]domain.Record)
	e.schemas[name] = schema
	return nil
}

func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices, name)
	delete(e.schemas, name)
	return nil
}

func (e *Engine) Upsert(_ context.Context, index string, doc domain.Record) error {
	id := doc.StringField("id")
	if id == "" {
		return fmt.Errorf("memory engine: the id is not provided")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[index]; !ok {
		e.indices[index] = make(map[string]domain.Record)
	}
	e.indices[index][id] = doc
	return nil
}

func (e *Engine) DeleteDocument(_ context.Context, index, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if docs, ok := e.indices[index]; ok {
		delete(docs, id)
	}
	return nil
}

// --- query evaluation ---

func boolFromBody(body map[string]any) map[string]any {
	q, _ := body["query"].(map[string]any)
	b, _ := q["bool"].(map[string]any)
	return b
}

func keywordsFromBody(body map[string]any) string {
	b := boolFromBody(body)
	must, _ := b["must"].([]any)
	for _, clause := range must {
		if m, ok := clause.(map[string]any); ok {
			if mm, ok := m["multi_match"].(map[string]any); ok {
				s, _ := mm["query"].(string)
				return s
			}
		}
	}
	return ""
}

// evalBool evaluates a bool query: all must and filter clauses must match,
// at least one should clause when present, and no must_not clause.
func evalBool(doc domain.Record, b map[string]any) (bool, float64) {
	score := 1.0

	for _, clause := range toClauses(b["must"]) {
		ok, s := evalClause(doc, clause)
		if !ok {
			return false, 0
		}
		score += s
	}
	for _, clause := range toClauses(b["filter"]) {
		if ok, _ := evalClause(doc, clause); !ok {
			return false, 0
		}
	}
	if should := toClauses(b["should"]); len(should) > 0 {
		matched := false
		for _, clause := range should {
			if ok, _ := evalClause(doc, clause); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, 0
		}
	}
	for _, clause := range toClauses(b["must_not"]) {
		if ok, _ := evalClause(doc, clause); ok {
			return false, 0
		}
	}
	return true, score
}

func evalClause(doc domain.Record, clause map[string]any) (bool, float64) {
	if inner, ok := clause["bool"].(map[string]any); ok {
		return evalBool(doc, inner)
	}

	if term, ok := clause["term"].(map[string]any); ok {
		for field, want := range term {
			return containsValue(doc[field], want), 0
		}
	}

	if terms, ok := clause["terms"].(map[string]any); ok {
		for field, want := range terms {
			for _, w := range toValues(want) {
				if containsValue(doc[field], w) {
					return true, 0
				}
			}
			return false, 0
		}
	}

	if rng, ok := clause["range"].(map[string]any); ok {
		for field, spec := range rng {
			return evalRange(doc[field], spec), 0
		}
	}

	if wildcard, ok := clause["wildcard"].(map[string]any); ok {
		for field, spec := range wildcard {
			pattern := ""
			if m, ok := spec.(map[string]any); ok {
				pattern, _ = m["value"].(string)
			}
			needle := strings.ToLower(strings.Trim(pattern, "*"))
			return strings.Contains(strings.ToLower(doc.StringField(field)), needle), 0
		}
	}

	if match, ok := clause["match"].(map[string]any); ok {
		for field, want := range match {
			text, _ := want.(string)
			return fieldMatches(doc.StringField(field), text), 0
		}
	}

	if mm, ok := clause["multi_match"].(map[string]any); ok {
		text, _ := mm["query"].(string)
		score := 0.0
		for _, field := range toStrings(mm["fields"]) {
			if fieldMatches(doc.StringField(field), text) {
				score++
			}
		}
		return score > 0, score
	}

	return false, 0
}

// fieldMatches reports whether every whitespace-separated token of text
// appears in the field value, case-insensitively.
func fieldMatches(value, text string) bool {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return false
	}
	haystack := strings.ToLower(value)
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}

func evalRange(value any, spec any) bool {
	m, ok := spec.(map[string]any)
	if !ok {
		return false
	}
	v, ok := toFloat(value)
	if !ok {
		// Fall back to lexical comparison for dates and strings.
		s := fmt.Sprint(value)
		for op, bound := range m {
			b := fmt.Sprint(bound)
			switch op {
			case "gt":
				if !(s > b) {
					return false
				}
			case "gte":
				if !(s >= b) {
					return false
				}
			case "lt":
				if !(s < b) {
					return false
				}
			case "lte":
				if !(s <= b) {
					return false
				}
			}
		}
		return true
	}
	for op, bound := range m {
		b, ok := toFloat(bound)
		if !ok {
			return false
		}
		switch op {
		case "gt":
			if !(v > b) {
				return false
			}
		case "gte":
			if !(v >= b) {
				return false
			}
		case "lt":
			if !(v < b) {
				return false
			}
		case "lte":
			if !(v <= b) {
				return false
			}
		}
	}
	return true
}

func aggregate(docs []domain.Record, aggs map[string]any) *domain.SearchResult {
	list, _ := aggs["list"].(map[string]any)
	terms, _ := list["terms"].(map[string]any)
	field, _ := terms["field"].(string)

	buckets := make(map[string]int)
	for _, doc := range docs {
		for _, v := range toValues(doc[field]) {
			buckets[fmt.Sprint(v)]++
		}
	}
	return &domain.SearchResult{Total: len(docs), Aggregations: buckets}
}

func highlightFragments(doc domain.Record, keywords string, spec map[string]any) map[string][]string {
	preTag, postTag := `<em>`, `</em>`
	if fields, ok := spec["fields"].([]any); ok && len(fields) > 0 {
		if m, ok := fields[0].(map[string]any); ok {
			for _, fieldSpec := range m {
				if fs, ok := fieldSpec.(map[string]any); ok {
					if tags, ok := fs["pre_tags"].([]string); ok && len(tags) > 0 {
						preTag = tags[0]
					}
					if tags, ok := fs["post_tags"].([]string); ok && len(tags) > 0 {
						postTag = tags[0]
					}
				}
			}
		}
	}

	fragments := make(map[string][]string)
	for _, field := range []string{"searchDisplay", "searchContent"} {
		if fieldMatches(doc.StringField(field), keywords) {
			fragments[field] = []string{preTag + keywords + postTag}
		}
	}
	if len(fragments) == 0 {
		return nil
	}
	return fragments
}

// --- value helpers ---

func toClauses(v any) []map[string]any {
	items, _ := v.([]any)
	clauses := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			clauses = append(clauses, m)
		}
	}
	return clauses
}

func toValues(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	default:
		return []any{vv}
	}
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// containsValue reports scalar equality, or membership when the document
// field holds a list.
func containsValue(field any, want any) bool {
	for _, v := range toValues(field) {
		if looseEqual(v, want) {
			return true
		}
	}
	return false
}

func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func project(doc domain.Record, attributes []string) domain.Record {
	if len(attributes) == 0 {
		return doc
	}
	out := make(domain.Record, len(attributes)+1)
	for _, a := range attributes {
		if v, ok := doc[a]; ok {
			out[a] = v
		}
	}
	if id, ok := doc["id"]; ok {
		out["id"] = id
	}
	return out
}
