package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/recordsearch/pkg/errors"

	"github.com/utafrali/recordsearch/internal/domain"
	"github.com/utafrali/recordsearch/internal/engine/memory"
	"github.com/utafrali/recordsearch/internal/index"
	"github.com/utafrali/recordsearch/internal/metadata"
	"github.com/utafrali/recordsearch/internal/query"
	"github.com/utafrali/recordsearch/internal/security"
	"github.com/utafrali/recordsearch/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore serves canned canonical records from memory.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.Record
	pages   []store.StalePage
	fetches int
	writes  []domain.Record

	// writeErrFor fails WriteDocument for one record id.
	writeErrFor string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]domain.Record)}
}

func (f *fakeStore) FetchByIDs(_ context.Context, ids []string, _ []string) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	var out []domain.Record
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ScanStale(_ context.Context, scan store.StaleScan) (*store.StalePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return &store.StalePage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return &page, nil
}

func (f *fakeStore) WriteDocument(_ context.Context, record domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErrFor != "" && record.StringField("id") == f.writeErrFor {
		return errors.New("write rejected")
	}
	f.writes = append(f.writes, record)
	f.records[record.StringField("id")] = record
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Engine, *fakeStore) {
	t.Helper()
	eng := memory.New()
	st := newFakeStore()
	logger := newTestLogger()
	registry := metadata.NewStaticRegistry()
	compiler := query.NewCompiler(security.NewPolicy(security.AllowAll))
	indices := index.NewManager(eng, registry, logger)
	svc := New(compiler, eng, indices, st, registry, logger)
	return svc, eng, st
}

func testCaller() domain.Caller {
	return domain.Caller{
		UserID:          "user-1",
		OrganizationID:  "org-1",
		SolutionID:      "sol-1",
		SolutionOwnerID: "owner-1",
	}
}

func articleRecord(id, title string) domain.Record {
	return domain.Record{
		"id":             id,
		"entityName":     "Article",
		"organizationId": "org-1",
		"stateCode":      0,
		"searchDisplay":  title,
		"searchContent":  title + " body",
		"title":          title,
	}
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.UpsertRecord(ctx, articleRecord("rec-1", "Winter Catalog")))

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		Keywords:   "winter",
	}, QueryOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "rec-1", result.Data[0].StringField("id"))
	assert.Contains(t, result.Data[0], "score")
}

func TestUpsertRecord_StripsMergedFields(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	record := articleRecord("rec-1", "Winter Catalog")
	record["description"] = "long body already merged into searchContent"
	record["_etag"] = "abc"

	require.NoError(t, svc.UpsertRecord(ctx, record))

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{EntityName: "Article"}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.NotContains(t, result.Data[0], "description")
	assert.NotContains(t, result.Data[0], "_etag")
	// The original record is not mutated.
	assert.Contains(t, record, "description")
}

func TestUpsertRecord_WritesSubtypeIndexToo(t *testing.T) {
	ctx := context.Background()
	svc, eng, _ := newTestService(t)

	record := articleRecord("rec-1", "Winter Catalog")
	record["entityType"] = "News"
	require.NoError(t, svc.UpsertRecord(ctx, record))

	for _, index := range []string{"article", "article_news"} {
		ok, err := eng.IndexExists(ctx, index)
		require.NoError(t, err)
		assert.True(t, ok, index)
	}

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		EntityType: "News",
	}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestUpsertRecord_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	err := svc.UpsertRecord(ctx, domain.Record{"entityName": "Article"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	err = svc.UpsertRecord(ctx, domain.Record{"id": "rec-1"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestDeleteRecord_RemovesFromBothIndices(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	record := articleRecord("rec-1", "Winter Catalog")
	record["entityType"] = "News"
	require.NoError(t, svc.UpsertRecord(ctx, record))

	require.NoError(t, svc.DeleteRecord(ctx, "Article", "News", "rec-1"))

	for _, req := range []*domain.QueryRequest{
		{EntityName: "Article"},
		{EntityName: "Article", EntityType: "News"},
	} {
		result, err := svc.Query(ctx, testCaller(), req, QueryOptions{})
		require.NoError(t, err)
		assert.Zero(t, result.Total)
	}
}

func TestQuery_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	mine := articleRecord("rec-1", "Winter Catalog")
	other := articleRecord("rec-2", "Winter Catalog")
	other["organizationId"] = "org-2"
	require.NoError(t, svc.UpsertRecord(ctx, mine))
	require.NoError(t, svc.UpsertRecord(ctx, other))

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{EntityName: "Article"}, QueryOptions{})

	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "rec-1", result.Data[0].StringField("id"))
}

func TestQuery_HydratesFromStore(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)

	require.NoError(t, svc.UpsertRecord(ctx, articleRecord("rec-1", "Winter Catalog")))
	st.records["rec-1"] = domain.Record{
		"id":          "rec-1",
		"entityName":  "Article",
		"title":       "Winter Catalog",
		"description": "full canonical text only the store has",
	}

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		Keywords:   "winter",
	}, QueryOptions{IncludeRawRecord: true})

	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "full canonical text only the store has", result.Data[0].StringField("description"))
	assert.Contains(t, result.Data[0], "score")
}

// reversedStore hands hydrated records back in the opposite order from the
// requested ids, the way a store with its own result ordering might.
type reversedStore struct {
	store.Store
}

func (r reversedStore) FetchByIDs(ctx context.Context, ids []string, attributes []string) ([]domain.Record, error) {
	records, err := r.Store.FetchByIDs(ctx, ids, attributes)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func TestQuery_HydrationReSortsByScore(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	st := newFakeStore()
	registry := metadata.NewStaticRegistry()
	logger := newTestLogger()
	compiler := query.NewCompiler(security.NewPolicy(security.AllowAll))
	svc := New(compiler, eng, index.NewManager(eng, registry, logger), reversedStore{st}, registry, logger)

	// rec-hi matches the keywords in both text fields, rec-lo in one.
	strong := articleRecord("rec-hi", "Winter Catalog")
	weak := articleRecord("rec-lo", "Spring Catalog")
	weak["searchContent"] = "winter clearance"
	require.NoError(t, svc.UpsertRecord(ctx, strong))
	require.NoError(t, svc.UpsertRecord(ctx, weak))
	st.records["rec-hi"] = domain.Record{"id": "rec-hi", "entityName": "Article", "title": "Winter Catalog"}
	st.records["rec-lo"] = domain.Record{"id": "rec-lo", "entityName": "Article", "title": "Spring Catalog"}

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		Keywords:   "winter",
	}, QueryOptions{IncludeRawRecord: true})

	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, "rec-hi", result.Data[0].StringField("id"))
	assert.Equal(t, "rec-lo", result.Data[1].StringField("id"))
	hi, _ := result.Data[0]["score"].(float64)
	lo, _ := result.Data[1]["score"].(float64)
	assert.Greater(t, hi, lo)
}

func TestQuery_EmptyHitsSkipStore(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)

	require.NoError(t, svc.UpsertRecord(ctx, articleRecord("rec-1", "Winter Catalog")))

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		Keywords:   "nothing matches this",
	}, QueryOptions{IncludeRawRecord: true})

	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Zero(t, st.fetches)
}

func TestQuery_AggregationMode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	first := articleRecord("rec-1", "A")
	first["categoryIds"] = []any{"cat-1", "cat-2"}
	second := articleRecord("rec-2", "B")
	second["categoryIds"] = []any{"cat-1"}
	require.NoError(t, svc.UpsertRecord(ctx, first))
	require.NoError(t, svc.UpsertRecord(ctx, second))

	result, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{
		EntityName: "Article",
		Aggregate:  "categoryIds",
	}, QueryOptions{})

	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.Equal(t, map[string]int{"cat-1": 2, "cat-2": 1}, result.Aggregations)
}

func TestQuery_ForbiddenCaller(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	registry := metadata.NewStaticRegistry()
	logger := newTestLogger()
	denyAll := security.AuthorizerFunc(func(domain.Caller, string, string) bool { return false })
	compiler := query.NewCompiler(security.NewPolicy(denyAll))
	svc := New(compiler, eng, index.NewManager(eng, registry, logger), newFakeStore(), registry, logger)

	_, err := svc.Query(ctx, testCaller(), &domain.QueryRequest{EntityName: "Article"}, QueryOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}
