package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/utafrali/recordsearch/internal/domain"
)

// Engine is an Elasticsearch-backed implementation of the SearchEngine
// interface. Index lifecycles are owned by the index manager, not here.
type Engine struct {
	client *elasticsearch.Client
	logger *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Score     float64             `json:"_score"`
			Source    domain.Record       `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		List struct {
			Buckets []struct {
				Key      any `json:"key"`
				DocCount int `json:"doc_count"`
			} `json:"buckets"`
		} `json:"list"`
	} `json:"aggregations"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine connected to the given URL.
func New(esURL string, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{client: client, logger: logger}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Execute runs a compiled query against its resolved indices.
func (e *Engine) Execute(ctx context.Context, query *domain.CompiledQuery) (*domain.SearchResult, error) {
	data, err := json.Marshal(query.Body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(query.Indices...),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, e.decodeError("elasticsearch search", res.Body, res.Status())
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	result := &domain.SearchResult{
		Total: esResp.Hits.Total.Value,
		Hits:  make([]domain.SearchHit, 0, len(esResp.Hits.Hits)),
	}
	for _, hit := range esResp.Hits.Hits {
		id := hit.ID
		if source := hit.Source.StringField("id"); source != "" {
			id = source
		}
		result.Hits = append(result.Hits, domain.SearchHit{
			ID:        id,
			Score:     hit.Score,
			Highlight: hit.Highlight,
			Source:    hit.Source,
		})
	}

	if buckets := esResp.Aggregations.List.Buckets; len(buckets) > 0 {
		result.Aggregations = make(map[string]int, len(buckets))
		for _, b := range buckets {
			result.Aggregations[fmt.Sprint(b.Key)] = b.DocCount
		}
	}

	return result, nil
}

// IndexExists reports whether the named index exists.
func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.client.Indices.Exists(
		[]string{name},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("elasticsearch index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, fmt.Errorf("elasticsearch index exists: unexpected status %s", res.Status())
	}
}

// GetSchema fetches the live mapping of an index as a field-to-type map.
func (e *Engine) GetSchema(ctx context.Context, name string) (map[string]string, error) {
	res, err := e.client.Indices.GetMapping(
		e.client.Indices.GetMapping.WithIndex(name),
		e.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get mapping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, e.decodeError("elasticsearch get mapping", res.Body, res.Status())
	}

	// Response shape: {"<index>": {"mappings": {"properties": {"<field>": {"type": ...}}}}}
	var raw map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("elasticsearch get mapping: decode response: %w", err)
	}

	indexMapping, ok := raw[name]
	if !ok {
		return nil, fmt.Errorf("elasticsearch get mapping: no mapping for index %s", name)
	}

	schema := make(map[string]string, len(indexMapping.Mappings.Properties))
	for field, spec := range indexMapping.Mappings.Properties {
		schema[field] = spec.Type
	}
	return schema, nil
}

// CreateIndex creates an index with the given mapping body.
func (e *Engine) CreateIndex(ctx context.Context, name string, mapping map[string]any) error {
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: marshal mapping: %w", err)
	}

	res, err := e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return e.decodeError("elasticsearch create index", res.Body, res.Status())
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", name))
	return nil
}

// DeleteIndex removes an index. A 404 response is treated as success.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	res, err := e.client.Indices.Delete(
		[]string{name},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return e.decodeError("elasticsearch delete index", res.Body, res.Status())
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", name))
	return nil
}

// Upsert adds or replaces a document in the named index.
func (e *Engine) Upsert(ctx context.Context, index string, doc domain.Record) error {
	id := doc.StringField("id")
	if id == "" {
		return fmt.Errorf("elasticsearch upsert: the id is not provided")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: marshal document: %w", err)
	}

	res, err := e.client.Index(
		index,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return e.decodeError("elasticsearch upsert", res.Body, res.Status())
	}

	e.logger.DebugContext(ctx, "indexed document", slog.String("index", index), slog.String("id", id))
	return nil
}

// DeleteDocument removes a document by id. A 404 response is ignored.
func (e *Engine) DeleteDocument(ctx context.Context, index, id string) error {
	res, err := e.client.Delete(
		index,
		id,
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return e.decodeError("elasticsearch delete", res.Body, res.Status())
	}

	e.logger.DebugContext(ctx, "deleted document", slog.String("index", index), slog.String("id", id))
	return nil
}

func (e *Engine) decodeError(op string, body io.Reader, status string) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s - %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, status)
}
