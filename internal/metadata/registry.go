package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FieldDefinition describes one entity field and where its content surfaces
// in the merged search-text pair.
type FieldDefinition struct {
	Name          string `json:"name"`
	SearchDisplay bool   `json:"searchDisplay"`
	SearchContent bool   `json:"searchContent"`
}

// EntitySchema is the per-entity contract the registry supplies: extra index
// fields merged into the core mapping, and the field definitions that drive
// search-text generation.
type EntitySchema struct {
	EntityName       string
	EntityType       string
	ExtraIndexFields map[string]map[string]any
	FieldDefinitions []FieldDefinition
}

// Registry resolves entity schemas. The authoritative registry lives outside
// this service; implementations here are a static table and test fakes.
type Registry interface {
	GetEntitySchema(ctx context.Context, solutionID, entityName, entityType string) (*EntitySchema, error)
}

// defaultFieldDefinitions cover the conventional display/content fields of
// entities that have no registered schema.
var defaultFieldDefinitions = []FieldDefinition{
	{Name: "name", SearchDisplay: true},
	{Name: "title", SearchDisplay: true},
	{Name: "firstName", SearchDisplay: true},
	{Name: "lastName", SearchDisplay: true},
	{Name: "summary", SearchContent: true},
	{Name: "description", SearchContent: true},
	{Name: "introduction", SearchContent: true},
	{Name: "note", SearchContent: true},
	{Name: "content", SearchContent: true},
}

// StaticRegistry serves schemas from an in-memory table, falling back to a
// default schema for unregistered entities.
type StaticRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*EntitySchema
}

// NewStaticRegistry creates an empty static registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{schemas: make(map[string]*EntitySchema)}
}

// Register adds or replaces a schema.
func (r *StaticRegistry) Register(schema *EntitySchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schemaKey(schema.EntityName, schema.EntityType)] = schema
}

// GetEntitySchema returns the registered schema for the entity, trying the
// entity+subtype pairing first, then the entity alone, then the default.
func (r *StaticRegistry) GetEntitySchema(_ context.Context, _, entityName, entityType string) (*EntitySchema, error) {
	if entityName == "" {
		return nil, fmt.Errorf("metadata: entity name is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if entityType != "" {
		if s, ok := r.schemas[schemaKey(entityName, entityType)]; ok {
			return s, nil
		}
	}
	if s, ok := r.schemas[schemaKey(entityName, "")]; ok {
		return s, nil
	}

	return &EntitySchema{
		EntityName:       entityName,
		EntityType:       entityType,
		FieldDefinitions: defaultFieldDefinitions,
	}, nil
}

func schemaKey(entityName, entityType string) string {
	return strings.ToLower(entityName) + "|" + strings.ToLower(entityType)
}
