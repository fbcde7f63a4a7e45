package index

import (
	"context"
	"log/slog"
	"sync"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/engine"
	"github.com/utafrali/recordsearch/internal/metadata"
)

// Manager guarantees a correctly-shaped index exists before reads or writes.
// Known-good indices are memoized for the process lifetime; an index whose
// schema cannot be confirmed is destructively recreated.
//
// The exists/delete/create sequence is serialized per index name: without
// that, two concurrent callers can both observe "missing" and interleave
// create/delete, transiently dropping documents.
type Manager struct {
	engine   engine.SearchEngine
	registry metadata.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	known map[string]bool
	locks map[string]*sync.Mutex
}

// NewManager creates an index manager with an empty known-good cache. The
// cache is owned by the manager, not by package state, so its lifetime is the
// service's lifetime.
func NewManager(eng engine.SearchEngine, registry metadata.Registry, logger *slog.Logger) *Manager {
	return &Manager{
		engine:   eng,
		registry: registry,
		logger:   logger,
		known:    make(map[string]bool),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Ensure checks the entity-level index and, when a subtype is given, the
// subtype-level index, creating whichever is missing or incompatible.
// forceCreate recreates both unconditionally.
func (m *Manager) Ensure(ctx context.Context, solutionID, entityName, entityType string, forceCreate bool) error {
	if entityName == "" {
		return apperrors.Validation("the entityName is not provided")
	}

	entityTarget := domain.IndexTarget{EntityName: entityName}
	if err := m.ensureOne(ctx, solutionID, entityTarget, forceCreate); err != nil {
		return err
	}

	if entityType != "" {
		subtypeTarget := domain.IndexTarget{EntityName: entityName, EntityType: entityType}
		if err := m.ensureOne(ctx, solutionID, subtypeTarget, forceCreate); err != nil {
			return err
		}
	}
	return nil
}

// ensureOne runs the check/create sequence for a single index under that
// index's lock.
func (m *Manager) ensureOne(ctx context.Context, solutionID string, target domain.IndexTarget, forceCreate bool) error {
	name := target.Name()

	lock := m.indexLock(name)
	lock.Lock()
	defer lock.Unlock()

	if !forceCreate && m.isGood(ctx, name) {
		return nil
	}
	return m.create(ctx, solutionID, target)
}

// isGood reports whether the index is confirmed compatible. A cache hit
// short-circuits; otherwise the live schema must show the identifier field as
// an exact-match keyword. Any fetch error or mismatch classifies as not good.
func (m *Manager) isGood(ctx context.Context, name string) bool {
	m.mu.Lock()
	good := m.known[name]
	m.mu.Unlock()
	if good {
		return true
	}

	schema, err := m.engine.GetSchema(ctx, name)
	if err != nil {
		m.logger.DebugContext(ctx, "index schema check failed",
			slog.String("index", name),
			slog.String("error", err.Error()),
		)
		return false
	}

	if schema["id"] != "keyword" {
		m.logger.WarnContext(ctx, "index has incompatible schema",
			slog.String("index", name),
			slog.String("id_field_type", schema["id"]),
		)
		return false
	}

	m.markGood(name)
	return true
}

// create builds the mapping from the entity's registered schema and recreates
// the index, deleting any existing one first. The known-good cache is updated
// only on confirmed success, so a failed creation stays eligible for retry.
func (m *Manager) create(ctx context.Context, solutionID string, target domain.IndexTarget) error {
	name := target.Name()

	schema, err := m.registry.GetEntitySchema(ctx, solutionID, target.EntityName, target.EntityType)
	if err != nil {
		return apperrors.Dependency("metadata lookup for index "+name, err)
	}

	exists, err := m.engine.IndexExists(ctx, name)
	if err != nil {
		return apperrors.Dependency("index existence check for "+name, err)
	}

	if exists {
		// Destructive: documents in the old index are gone until the next
		// reindex run repopulates it.
		m.logger.WarnContext(ctx, "recreating incompatible index, search results will be incomplete until reindexing",
			slog.String("index", name),
		)
		if err := m.engine.DeleteIndex(ctx, name); err != nil {
			return apperrors.Dependency("index deletion for "+name, err)
		}
	}

	mapping := BuildMapping(schema.ExtraIndexFields)
	if err := m.engine.CreateIndex(ctx, name, mapping); err != nil {
		return apperrors.Dependency("index creation for "+name, err)
	}

	m.markGood(name)
	m.logger.InfoContext(ctx, "index created", slog.String("index", name))
	return nil
}

func (m *Manager) markGood(name string) {
	m.mu.Lock()
	m.known[name] = true
	m.mu.Unlock()
}

// indexLock returns the mutex serializing lifecycle operations for one index.
func (m *Manager) indexLock(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	return lock
}
