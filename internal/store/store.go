package store

import (
	"context"
	"time"

	"github.com/utafrali/recordsearch/internal/domain"
)

// StalePage is one page of a stale-document scan plus the cursor for the
// next page.
type StalePage struct {
	Records []domain.Record
	NextID  string
	HasMore bool
}

// StaleScan describes which documents a reindex pass should visit.
type StaleScan struct {
	// EntityName restricts the scan to one entity when non-empty.
	EntityName string
	// Cutoff selects documents whose last search-indexed timestamp is
	// older than this, or absent entirely.
	Cutoff time.Time
	// AfterID is the keyset cursor; empty starts from the beginning.
	AfterID string
	// PageSize bounds the page.
	PageSize int
}

// Store is the canonical document store the search index is a projection of.
type Store interface {
	// FetchByIDs returns the full records for the given identifiers,
	// optionally projected to the named attributes. Order is not
	// guaranteed to follow ids.
	FetchByIDs(ctx context.Context, ids []string, attributes []string) ([]domain.Record, error)

	// ScanStale returns one page of documents matching the scan.
	ScanStale(ctx context.Context, scan StaleScan) (*StalePage, error)

	// WriteDocument upserts a record. The canonical-store write path fans
	// the change out to the search index.
	WriteDocument(ctx context.Context, record domain.Record) error
}
