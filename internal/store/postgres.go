package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/recordsearch/internal/domain"
)

// DB is the subset of pgxpool.Pool used by the store; tests substitute
// pgxmock through it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore persists canonical records as JSONB documents in a single
// `records` table keyed by document id.
type PostgresStore struct {
	pool DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const fetchByIDsSQL = `SELECT doc FROM records WHERE id = ANY($1) ORDER BY id`

// FetchByIDs returns the full records for the given identifiers in a single
// batched query. An empty id list returns no records rather than everything.
func (s *PostgresStore) FetchByIDs(ctx context.Context, ids []string, attributes []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, fetchByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch records by ids: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	if projected := projectionSet(attributes); projected != nil {
		for i, r := range records {
			records[i] = projectRecord(r, projected)
		}
	}
	return records, nil
}

const scanStaleSQL = `
SELECT doc FROM records
WHERE (doc->>'searchReindexedOn' IS NULL OR doc->>'searchReindexedOn' < $1)
  AND ($2 = '' OR doc->>'entityName' = $2)
  AND id > $3
ORDER BY id
LIMIT $4`

// ScanStale returns one page of documents whose last search-indexed timestamp
// is absent or older than the cutoff, keyset-paginated by id.
func (s *PostgresStore) ScanStale(ctx context.Context, scan StaleScan) (*StalePage, error) {
	pageSize := scan.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	rows, err := s.pool.Query(ctx, scanStaleSQL,
		scan.Cutoff.UTC().Format(time.RFC3339),
		scan.EntityName,
		scan.AfterID,
		pageSize+1,
	)
	if err != nil {
		return nil, fmt.Errorf("scan stale records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	page := &StalePage{Records: records}
	if len(records) > pageSize {
		page.Records = records[:pageSize]
		page.HasMore = true
	}
	if n := len(page.Records); n > 0 {
		page.NextID = page.Records[n-1].StringField("id")
	}
	return page, nil
}

const writeDocumentSQL = `
INSERT INTO records (id, doc) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`

// WriteDocument upserts a record by its id field. Last writer wins; the
// reindex path tolerates concurrent mutations.
func (s *PostgresStore) WriteDocument(ctx context.Context, record domain.Record) error {
	id := record.StringField("id")
	if id == "" {
		return fmt.Errorf("write record: the id is not provided")
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("write record %s: marshal: %w", id, err)
	}

	if _, err := s.pool.Exec(ctx, writeDocumentSQL, id, doc); err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	return nil
}

// Ping verifies database connectivity for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecords(rows pgx.Rows) ([]domain.Record, error) {
	var records []domain.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		var record domain.Record
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("decode record document: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

// projectionSet returns nil when the caller wants whole documents.
func projectionSet(attributes []string) map[string]bool {
	if len(attributes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(attributes)+1)
	for _, a := range attributes {
		if a == "*" {
			return nil
		}
		set[a] = true
	}
	// The identifier always survives projection; fusion joins on it.
	set["id"] = true
	return set
}

func projectRecord(r domain.Record, keep map[string]bool) domain.Record {
	out := make(domain.Record, len(keep))
	for k, v := range r {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}
