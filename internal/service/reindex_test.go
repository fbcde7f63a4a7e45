package service

import (
	"context"
	"errors"
	"testing"
	"time"

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

func ownerCaller() domain.Caller {
	return domain.Caller{
		UserID:          "owner-1",
		OrganizationID:  "org-1",
		SolutionID:      "sol-1",
		SolutionOwnerID: "owner-1",
	}
}

func TestReindex_OnlySolutionOwner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Reindex(ctx, testCaller(), ReindexOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestReindex_AnonymousCallerForbidden(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Reindex(ctx, domain.Caller{}, ReindexOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestReindex_RegeneratesSearchText(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)

	st.pages = []store.StalePage{{
		Records: []domain.Record{{
			"id":          "rec-1",
			"entityName":  "Article",
			"title":       "Winter Catalog",
			"description": "Everything on sale this season",
		}},
	}}

	counts, err := svc.Reindex(ctx, ownerCaller(), ReindexOptions{})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Article": 1}, counts)
	require.Len(t, st.writes, 1)

	written := st.writes[0]
	assert.Equal(t, "Winter Catalog", written.StringField("searchDisplay"))
	assert.Equal(t, "Everything on sale this season", written.StringField("searchContent"))

	stamped, err := time.Parse(time.RFC3339, written.StringField("searchReindexedOn"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), stamped, time.Minute)
}

// recordingRegistry remembers which solution each schema lookup keyed on.
type recordingRegistry struct {
	metadata.Registry
	solutionIDs []string
}

func (r *recordingRegistry) GetEntitySchema(ctx context.Context, solutionID, entityName, entityType string) (*metadata.EntitySchema, error) {
	r.solutionIDs = append(r.solutionIDs, solutionID)
	return r.Registry.GetEntitySchema(ctx, solutionID, entityName, entityType)
}

func TestReindex_UsesRecordSolutionForSchemaLookup(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	st := newFakeStore()
	logger := newTestLogger()
	registry := &recordingRegistry{Registry: metadata.NewStaticRegistry()}
	compiler := query.NewCompiler(security.NewPolicy(security.AllowAll))
	svc := New(compiler, eng, index.NewManager(eng, registry, logger), st, registry, logger)

	st.pages = []store.StalePage{{
		Records: []domain.Record{
			{"id": "rec-1", "entityName": "Article", "solutionId": "sol-other", "title": "Theirs"},
			{"id": "rec-2", "entityName": "Article", "title": "No solution on record"},
		},
	}}

	_, err := svc.Reindex(ctx, ownerCaller(), ReindexOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"sol-other", "sol-1"}, registry.solutionIDs)
}

func TestReindex_SkipsReservedEntities(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)

	st.pages = []store.StalePage{{
		Records: []domain.Record{
			{"id": "rec-1", "entityName": domain.EntityDomain},
			{"id": "rec-2", "entityName": domain.EntitySecret},
			{"id": "rec-3"},
			{"id": "rec-4", "entityName": "Article", "title": "Kept"},
		},
	}}

	counts, err := svc.Reindex(ctx, ownerCaller(), ReindexOptions{})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Article": 1}, counts)
	require.Len(t, st.writes, 1)
	assert.Equal(t, "rec-4", st.writes[0].StringField("id"))
}

func TestReindex_FollowsPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)

	st.pages = []store.StalePage{
		{
			Records: []domain.Record{{"id": "rec-1", "entityName": "Article", "title": "One"}},
			NextID:  "rec-1",
			HasMore: true,
		},
		{
			Records: []domain.Record{{"id": "rec-2", "entityName": "Article", "entityType": "News", "title": "Two"}},
		},
	}

	counts, err := svc.Reindex(ctx, ownerCaller(), ReindexOptions{})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Article": 1, "Article_News": 1}, counts)
	assert.Len(t, st.writes, 2)
}

func TestReindex_IsolatesPerRecordFailures(t *testing.T) {
	ctx := context.Background()
	svc, _, st := newTestService(t)
	st.writeErrFor = "rec-1"

	st.pages = []store.StalePage{{
		Records: []domain.Record{
			{"id": "rec-1", "entityName": "Article", "title": "Broken"},
			{"id": "rec-2", "entityName": "Article", "title": "Fine"},
		},
	}}

	counts, err := svc.Reindex(ctx, ownerCaller(), ReindexOptions{})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Article": 1}, counts)
	require.Len(t, st.writes, 1)
	assert.Equal(t, "rec-2", st.writes[0].StringField("id"))
}
