package engine

import (
	"context"

	"github.com/utafrali/recordsearch/internal/domain"
)

// SearchEngine is the low-level search engine client the core depends on.
// Implementations may use Elasticsearch or in-memory storage.
type SearchEngine interface {
	// Execute runs a compiled query and returns raw hits.
	Execute(ctx context.Context, query *domain.CompiledQuery) (*domain.SearchResult, error)

	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// GetSchema returns the field-name to field-type map of an index.
	GetSchema(ctx context.Context, name string) (map[string]string, error)

	// CreateIndex creates an index with the given mapping body.
	CreateIndex(ctx context.Context, name string, mapping map[string]any) error

	// DeleteIndex removes an index. Deleting an absent index is not an error.
	DeleteIndex(ctx context.Context, name string) error

	// Upsert adds or replaces a document in the named index.
	Upsert(ctx context.Context, index string, doc domain.Record) error

	// DeleteDocument removes a document by id. Absent documents are ignored.
	DeleteDocument(ctx context.Context, index, id string) error
}
