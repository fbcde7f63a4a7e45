package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/metadata"
	"github.com/utafrali/recordsearch/internal/query"
	"github.com/utafrali/recordsearch/internal/store"
)

// Reindex pacing defaults. The cutoff keeps repeated runs from revisiting
// documents indexed within the last hour.
const (
	DefaultReindexCutoff   = 60 * time.Minute
	defaultReindexPageSize = 200
)

// ReindexOptions tune one reindex run.
type ReindexOptions struct {
	// EntityName restricts the run to one entity when non-empty.
	EntityName string
	// Cutoff overrides the rolling staleness cutoff.
	Cutoff time.Time
	// PageSize overrides the scan page size.
	PageSize int
}

// Reindex walks canonical records whose search text is stale, regenerates
// searchDisplay/searchContent from the entity's field definitions, stamps
// the record, and writes it back through the canonical store. Only the
// solution owner may run it. Per-record failures are logged and skipped so
// one bad document cannot stall the batch.
//
// The returned map counts processed records per entityName_entityType
// bucket.
func (s *Service) Reindex(ctx context.Context, caller domain.Caller, opts ReindexOptions) (map[string]int, error) {
	if caller.UserID == "" || caller.UserID != caller.SolutionOwnerID {
		return nil, apperrors.Forbidden("only the solution owner can reindex records")
	}

	cutoff := opts.Cutoff
	if cutoff.IsZero() {
		cutoff = time.Now().UTC().Add(-DefaultReindexCutoff)
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultReindexPageSize
	}

	counts := make(map[string]int)
	scan := store.StaleScan{
		EntityName: opts.EntityName,
		Cutoff:     cutoff,
		PageSize:   pageSize,
	}

	for {
		page, err := s.store.ScanStale(ctx, scan)
		if err != nil {
			return counts, err
		}

		for _, record := range page.Records {
			entityName := record.StringField("entityName")
			if entityName == "" || entityName == domain.EntityDomain || entityName == domain.EntitySecret {
				continue
			}

			if err := s.reindexRecord(ctx, caller, record); err != nil {
				s.logger.ErrorContext(ctx, "reindex record failed",
					slog.String("record_id", record.StringField("id")),
					slog.String("entity_name", entityName),
					slog.Any("error", err),
				)
				continue
			}

			counts[bucketKey(entityName, record.StringField("entityType"))]++
		}

		if !page.HasMore {
			break
		}
		scan.AfterID = page.NextID
	}

	s.logger.InfoContext(ctx, "reindex completed",
		slog.String("entity_name", opts.EntityName),
		slog.Any("counts", counts),
	)
	return counts, nil
}

// reindexRecord regenerates the search-text pair and writes the record back.
// The schema lookup keys on the record's own solution so multi-solution
// batches resolve each record's entity definitions, not the caller's.
func (s *Service) reindexRecord(ctx context.Context, caller domain.Caller, record domain.Record) error {
	solutionID := record.StringField("solutionId")
	if solutionID == "" {
		solutionID = caller.SolutionID
	}
	schema, err := s.registry.GetEntitySchema(ctx, solutionID, record.StringField("entityName"), record.StringField("entityType"))
	if err != nil {
		return err
	}

	display, content := searchText(record, schema.FieldDefinitions)
	record[query.FieldSearchDisplay] = display
	record[query.FieldSearchContent] = content
	record["searchReindexedOn"] = time.Now().UTC().Format(time.RFC3339)

	return s.store.WriteDocument(ctx, record)
}

func bucketKey(entityName, entityType string) string {
	if entityType == "" {
		return entityName
	}
	return entityName + "_" + entityType
}

// searchText merges the record's indexable field values into the
// display/content pair per the field definitions.
func searchText(record domain.Record, defs []metadata.FieldDefinition) (string, string) {
	var display, content []string
	for _, def := range defs {
		value := strings.TrimSpace(record.StringField(def.Name))
		if value == "" {
			continue
		}
		if def.SearchDisplay {
			display = append(display, value)
		}
		if def.SearchContent {
			content = append(content, value)
		}
	}
	return strings.Join(display, " "), strings.Join(content, " ")
}
