package service

import (
	"context"
	"log/slog"
	"sort"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/engine"
	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/metadata"
	"github.com/utafrali/recordsearch/internal/query"
	"github.com/utafrali/recordsearch/internal/store"
)

// strippedIndexFields are removed from documents before indexing: store
// bookkeeping fields plus the fields whose content is already merged into
// searchDisplay/searchContent.
var strippedIndexFields = []string{
	"_rid", "_attachments", "_self", "_etag", "_ts",
	"description", "note", "summary", "introduction", "title",
	"firstName", "lastName", "content", "name", "token", "url",
}

// Service implements the business logic for record search: query execution
// with result fusion, and the trusted index write path.
type Service struct {
	compiler *query.Compiler
	engine   engine.SearchEngine
	indices  *index.Manager
	store    store.Store
	registry metadata.Registry
	logger   *slog.Logger
}

// New creates a search service.
func New(
	compiler *query.Compiler,
	eng engine.SearchEngine,
	indices *index.Manager,
	st store.Store,
	registry metadata.Registry,
	logger *slog.Logger,
) *Service {
	return &Service{
		compiler: compiler,
		engine:   eng,
		indices:  indices,
		store:    st,
		registry: registry,
		logger:   logger,
	}
}

// QueryOptions tune one query execution.
type QueryOptions struct {
	// SkipSecurityCheck bypasses the capability check and the forced
	// tenant clauses. Trusted internal callers only.
	SkipSecurityCheck bool
	// IncludeRawRecord hydrates each hit with the canonical record from
	// the document store instead of returning the index projection.
	IncludeRawRecord bool
}

// Query compiles the request, executes it, and shapes the hits. Each
// returned record is the hit source with the highlight fragments and the
// relevance score attached.
func (s *Service) Query(ctx context.Context, caller domain.Caller, req *domain.QueryRequest, opts QueryOptions) (*domain.QueryResult, error) {
	compiled, err := s.compiler.Compile(caller, req, opts.SkipSecurityCheck)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Execute(ctx, compiled)
	if err != nil {
		return nil, apperrors.Dependency("query execution", err)
	}

	if result.Aggregations != nil {
		return &domain.QueryResult{
			Total:        result.Total,
			Aggregations: result.Aggregations,
		}, nil
	}

	data := shapeHits(result.Hits)
	if opts.IncludeRawRecord && len(result.Hits) > 0 {
		data, err = s.hydrate(ctx, result.Hits, req.Attributes)
		if err != nil {
			return nil, err
		}
	}

	s.logger.DebugContext(ctx, "query executed",
		slog.String("entity_name", req.EntityName),
		slog.Int("total", result.Total),
		slog.Int("returned", len(data)),
	)

	return &domain.QueryResult{Total: result.Total, Data: data}, nil
}

// shapeHits flattens engine hits into result records.
func shapeHits(hits []domain.SearchHit) []domain.Record {
	data := make([]domain.Record, 0, len(hits))
	for _, hit := range hits {
		record := make(domain.Record, len(hit.Source)+2)
		for k, v := range hit.Source {
			record[k] = v
		}
		attachHit(record, hit)
		data = append(data, record)
	}
	return data
}

// hydrate replaces index projections with canonical records fetched in a
// single batched lookup, re-attaches highlight and score by id, and re-sorts
// by relevance since the store does not preserve hit order.
func (s *Service) hydrate(ctx context.Context, hits []domain.SearchHit, attributes []string) ([]domain.Record, error) {
	ids := make([]string, 0, len(hits))
	byID := make(map[string]domain.SearchHit, len(hits))
	for _, hit := range hits {
		if hit.ID == "" {
			continue
		}
		ids = append(ids, hit.ID)
		byID[hit.ID] = hit
	}

	records, err := s.store.FetchByIDs(ctx, ids, attributes)
	if err != nil {
		return nil, apperrors.Dependency("record hydration", err)
	}

	data := make([]domain.Record, 0, len(records))
	for _, record := range records {
		hit, ok := byID[record.StringField("id")]
		if !ok {
			continue
		}
		attachHit(record, hit)
		data = append(data, record)
	}

	sort.SliceStable(data, func(i, j int) bool {
		si, _ := data[i]["score"].(float64)
		sj, _ := data[j]["score"].(float64)
		return si > sj
	})
	return data, nil
}

func attachHit(record domain.Record, hit domain.SearchHit) {
	if len(hit.Highlight) > 0 {
		record["highlight"] = hit.Highlight
	}
	record["score"] = hit.Score
}

// UpsertRecord writes a record into the entity-level index and, when the
// record carries a subtype, the subtype-level index. Indices are ensured
// first. The caller is trusted; no permission checks apply here.
func (s *Service) UpsertRecord(ctx context.Context, record domain.Record) error {
	id := record.StringField("id")
	if id == "" {
		return apperrors.Validation("the id is not provided")
	}
	entityName := record.StringField("entityName")
	if entityName == "" {
		return apperrors.Validation("the entityName is not provided")
	}
	entityType := record.StringField("entityType")

	if err := s.indices.Ensure(ctx, record.StringField("solutionId"), entityName, entityType, false); err != nil {
		return err
	}

	doc := indexableDocument(record)
	entityIndex := domain.IndexTarget{EntityName: entityName}.Name()
	if err := s.engine.Upsert(ctx, entityIndex, doc); err != nil {
		return err
	}
	if entityType != "" {
		subtypeIndex := domain.IndexTarget{EntityName: entityName, EntityType: entityType}.Name()
		if err := s.engine.Upsert(ctx, subtypeIndex, doc); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "record indexed",
		slog.String("record_id", id),
		slog.String("entity_name", entityName),
	)
	return nil
}

// DeleteRecord removes a record from the entity-level index and, when a
// subtype is given, the subtype-level index. A document already absent from
// an index is not an error.
func (s *Service) DeleteRecord(ctx context.Context, entityName, entityType, id string) error {
	if id == "" {
		return apperrors.Validation("the id is not provided")
	}
	if entityName == "" {
		return apperrors.Validation("the entityName is not provided")
	}

	entityIndex := domain.IndexTarget{EntityName: entityName}.Name()
	if err := s.engine.DeleteDocument(ctx, entityIndex, id); err != nil {
		return err
	}
	if entityType != "" {
		subtypeIndex := domain.IndexTarget{EntityName: entityName, EntityType: entityType}.Name()
		if err := s.engine.DeleteDocument(ctx, subtypeIndex, id); err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "record removed from index",
		slog.String("record_id", id),
		slog.String("entity_name", entityName),
	)
	return nil
}

// indexableDocument copies the record without the fields the index never
// stores.
func indexableDocument(record domain.Record) domain.Record {
	doc := make(domain.Record, len(record))
	for k, v := range record {
		doc[k] = v
	}
	for _, field := range strippedIndexFields {
		delete(doc, field)
	}
	return doc
}
