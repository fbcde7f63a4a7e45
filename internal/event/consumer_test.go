package event

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/recordsearch/pkg/kafka"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/engine/memory"
	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/metadata"
	"github.com/utafrali/recordsearch/internal/query"
	"github.com/utafrali/recordsearch/internal/security"
	"github.com/utafrali/recordsearch/internal/service"
	"github.com/utafrali/recordsearch/internal/store"
)

type nullStore struct{}

func (nullStore) FetchByIDs(context.Context, []string, []string) ([]domain.Record, error) {
	return nil, nil
}

func (nullStore) ScanStale(context.Context, store.StaleScan) (*store.StalePage, error) {
	return &store.StalePage{}, nil
}

func (nullStore) WriteDocument(context.Context, domain.Record) error { return nil }

func newTestConsumer(t *testing.T) (*Consumer, *service.Service) {
	t.Helper()
	eng := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := metadata.NewStaticRegistry()
	compiler := query.NewCompiler(security.NewPolicy(security.AllowAll))
	indices := index.NewManager(eng, registry, logger)
	svc := service.New(compiler, eng, indices, nullStore{}, registry, logger)
	return NewConsumer(svc, logger), svc
}

func mustEvent(t *testing.T, eventType string, data any) *pkgkafka.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &pkgkafka.Event{
		EventID:   "evt-1",
		EventType: eventType,
		Data:      raw,
	}
}

func internalCaller() domain.Caller {
	return domain.Caller{UserID: "internal", OrganizationID: "org-1", SolutionID: "sol-1"}
}

func TestHandle_UpsertedEventIndexesRecord(t *testing.T) {
	ctx := context.Background()
	consumer, svc := newTestConsumer(t)

	record := domain.Record{
		"id":             "rec-1",
		"entityName":     "Article",
		"organizationId": "org-1",
		"stateCode":      0,
		"searchDisplay":  "Winter Catalog",
	}

	require.NoError(t, consumer.Handle(ctx, mustEvent(t, TopicRecordUpserted, record)))

	result, err := svc.Query(ctx, internalCaller(), &domain.QueryRequest{EntityName: "Article"}, service.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestHandle_DeletedEventRemovesRecord(t *testing.T) {
	ctx := context.Background()
	consumer, svc := newTestConsumer(t)

	record := domain.Record{
		"id":             "rec-1",
		"entityName":     "Article",
		"organizationId": "org-1",
		"stateCode":      0,
	}
	require.NoError(t, consumer.Handle(ctx, mustEvent(t, TopicRecordUpserted, record)))

	require.NoError(t, consumer.Handle(ctx, mustEvent(t, TopicRecordDeleted, RecordDeletedData{
		ID:         "rec-1",
		EntityName: "Article",
	})))

	result, err := svc.Query(ctx, internalCaller(), &domain.QueryRequest{EntityName: "Article"}, service.QueryOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestHandle_MalformedPayloadFails(t *testing.T) {
	consumer, _ := newTestConsumer(t)

	err := consumer.Handle(context.Background(), &pkgkafka.Event{
		EventType: TopicRecordUpserted,
		Data:      json.RawMessage(`{broken`),
	})

	assert.Error(t, err)
}

func TestHandle_UnknownEventTypeIsSkipped(t *testing.T) {
	consumer, _ := newTestConsumer(t)

	err := consumer.Handle(context.Background(), &pkgkafka.Event{
		EventType: "platform.record.archived",
		Data:      json.RawMessage(`{}`),
	})

	assert.NoError(t, err)
}
