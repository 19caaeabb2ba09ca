package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/backends/memory"
	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	"github.com/pageinsights/pageinsights-backend/internal/scrape"
	cachestore "github.com/pageinsights/pageinsights-backend/internal/store"
	memkv "github.com/pageinsights/pageinsights-backend/pkg/kv/memory"
)

type stubAcquirer struct {
	graph *entities.PageGraph
	err   error
	calls int
}

func (s *stubAcquirer) Acquire(ctx context.Context, pageKey string) (*entities.PageGraph, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.graph, nil
}

func sampleGraph(pageKey string) *entities.PageGraph {
	postedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &entities.PageGraph{
		Page: entities.Page{
			PageKey:        pageKey,
			Name:           "Acme Corp",
			URL:            "https://example.com/company/" + pageKey,
			TotalFollowers: 1200,
		},
		Posts: []entities.PostNode{
			{
				Post: entities.Post{PostKey: "post-1", LikeCount: 10, CommentCount: 2, PostedAt: postedAt},
				Comments: []entities.Comment{
					{CommentKey: "c-1", AuthorName: "Ann", Content: "hi", CommentedAt: postedAt.Add(time.Hour)},
				},
			},
			{
				Post: entities.Post{PostKey: "post-2", LikeCount: 4, CommentCount: 1, PostedAt: postedAt.Add(time.Hour)},
			},
		},
		Members: []entities.PageMember{
			{MemberKey: "u-1", Name: "Dana"},
		},
		CapturedAt: time.Now().UTC(),
	}
}

type fixture struct {
	store    *memory.Store
	cache    *cachestore.Cache
	acquirer *stubAcquirer
	ingestor *Ingestor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kvStore := memkv.NewStore()
	t.Cleanup(func() { _ = kvStore.Close() })

	f := &fixture{
		store:    memory.NewStore(),
		cache:    cachestore.NewCacheWithStore(kvStore, time.Minute, zap.NewNop().Sugar(), nil),
		acquirer: &stubAcquirer{graph: sampleGraph("acme-corp")},
	}
	f.ingestor = NewIngestor(f.acquirer, f.store, f.cache, zap.NewNop().Sugar(), nil)
	return f
}

func TestIngestSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Pre-seed a cached view that must be invalidated by the run.
	require.NoError(t, f.cache.Set(ctx, cachestore.PageCacheKey("acme-corp"), entities.Page{Name: "stale"}, 0))

	res := f.ingestor.Ingest(ctx, "acme-corp")
	require.True(t, res.Success, "error: %s", res.Error)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "acme-corp", res.PageKey)
	assert.NotZero(t, res.PageID)
	assert.Equal(t, 2, res.PostsProcessed)
	assert.Equal(t, 1, res.EmployeesProcessed)
	assert.False(t, res.ProcessedAt.IsZero())

	page, err := f.store.GetPageByKey(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, res.PageID, page.ID)

	var cached entities.Page
	assert.ErrorIs(t, f.cache.Get(ctx, cachestore.PageCacheKey("acme-corp"), &cached), cachestore.ErrCacheMiss,
		"stale page entry must be invalidated")
}

func TestIngestAcquisitionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.acquirer.err = &scrape.AcquireError{Kind: scrape.NotFound, PageKey: "gone-inc", Err: scrape.ErrPageNotFound}

	res := f.ingestor.Ingest(ctx, "gone-inc")
	assert.False(t, res.Success)
	assert.Equal(t, scrape.NotFound, res.FailureKind)
	assert.NotEmpty(t, res.Error)

	_, err := f.store.GetPageByKey(ctx, "gone-inc")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestIngestPersistenceFailureDiscardsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := entities.Page{Name: "still cached"}
	require.NoError(t, f.cache.Set(ctx, cachestore.PageCacheKey("acme-corp"), stale, 0))

	f.store.SetUpsertHook(func(entity, naturalKey string) error {
		if entity == "member" {
			return errors.New("disk full")
		}
		return nil
	})

	res := f.ingestor.Ingest(ctx, "acme-corp")
	assert.False(t, res.Success)
	assert.Empty(t, res.FailureKind)

	// Nothing persisted, nothing invalidated.
	_, err := f.store.GetPageByKey(ctx, "acme-corp")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	var cached entities.Page
	require.NoError(t, f.cache.Get(ctx, cachestore.PageCacheKey("acme-corp"), &cached))
	assert.Equal(t, stale, cached)
}

func TestIngestRecordsRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok := f.ingestor.Ingest(ctx, "acme-corp")
	require.True(t, ok.Success, "error: %s", ok.Error)

	f.acquirer.err = &scrape.AcquireError{Kind: scrape.TransientError, PageKey: "acme-corp",
		Err: errors.New("upstream unreachable")}
	failed := f.ingestor.Ingest(ctx, "acme-corp")
	require.False(t, failed.Success)

	list, err := f.store.ListIngestRunsByPage(ctx, "acme-corp", interfaces.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	// Newest first: the failed run, then the successful one.
	assert.Equal(t, failed.RunID, list.Items[0].RunKey)
	assert.Equal(t, entities.RunFailed, list.Items[0].Status)
	assert.Equal(t, failed.Error, list.Items[0].Error)

	assert.Equal(t, ok.RunID, list.Items[1].RunKey)
	assert.Equal(t, entities.RunSucceeded, list.Items[1].Status)
	assert.Equal(t, 2, list.Items[1].PostsProcessed)
	assert.Equal(t, 1, list.Items[1].MembersProcessed)
	assert.False(t, list.Items[1].StartedAt.After(list.Items[1].FinishedAt))
}

func TestGetPageScrapeOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewPageService(f.store, f.cache, f.ingestor, true, zap.NewNop().Sugar())

	page, err := svc.GetPage(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", page.Name)
	assert.Equal(t, 1, f.acquirer.calls)

	// Now cached; neither the store miss path nor the scraper runs again.
	_, err = svc.GetPage(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, 1, f.acquirer.calls)
}

func TestGetPageScrapeOnMissDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewPageService(f.store, f.cache, f.ingestor, false, zap.NewNop().Sugar())

	_, err := svc.GetPage(ctx, "acme-corp")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.Zero(t, f.acquirer.calls)
}

func TestGetPageNotFoundAtSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.acquirer.err = &scrape.AcquireError{Kind: scrape.NotFound, PageKey: "gone-inc"}
	svc := NewPageService(f.store, f.cache, f.ingestor, true, zap.NewNop().Sugar())

	_, err := svc.GetPage(ctx, "gone-inc")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestListPostsCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.ingestor.Ingest(ctx, "acme-corp").Success)

	svc := NewPageService(f.store, f.cache, f.ingestor, false, zap.NewNop().Sugar())

	first, err := svc.ListPosts(ctx, "acme-corp", interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Meta.Total)

	// A second read within TTL is served from the cache and does not see
	// writes that bypassed invalidation.
	_, err = f.store.ApplyGraph(ctx, func() *entities.PageGraph {
		g := sampleGraph("acme-corp")
		g.Posts = append(g.Posts, entities.PostNode{
			Post: entities.Post{PostKey: "post-3", PostedAt: time.Now().UTC()},
		})
		return g
	}())
	require.NoError(t, err)

	second, err := svc.ListPosts(ctx, "acme-corp", interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Meta.Total)
}

func TestListFollowers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.ingestor.Ingest(ctx, "acme-corp").Success)

	svc := NewPageService(f.store, f.cache, f.ingestor, false, zap.NewNop().Sugar())

	followers, err := svc.ListFollowers(ctx, "acme-corp", interfaces.Pagination{})
	require.NoError(t, err)
	require.Len(t, followers.Items, 1)
	assert.Equal(t, "Dana", followers.Items[0].Name)
}

func TestEngagementSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.ingestor.Ingest(ctx, "acme-corp").Success)

	svc := NewInsightService(f.store, f.cache, nil, zap.NewNop().Sugar())

	stats, err := svc.Summarize(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PostCount)
	assert.Equal(t, int64(14), stats.TotalLikes)
	assert.Equal(t, int64(3), stats.TotalComments)
	assert.Equal(t, "7.00", stats.AvgLikes.StringFixed(2))
	assert.Equal(t, "1.50", stats.AvgComments.StringFixed(2))
	// (7 + 1.5) / 1200 followers = 0.7083%.
	assert.Equal(t, "0.71", stats.EngagementRate.StringFixed(2))
	assert.Contains(t, stats.Summary, "Acme Corp")
}

func TestEngagementSummaryNoPosts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	g := sampleGraph("quiet-co")
	g.Posts = nil
	_, err := f.store.ApplyGraph(ctx, g)
	require.NoError(t, err)

	svc := NewInsightService(f.store, f.cache, nil, zap.NewNop().Sugar())

	stats, err := svc.Summarize(ctx, "quiet-co")
	require.NoError(t, err)
	assert.Zero(t, stats.PostCount)
	assert.True(t, stats.AvgLikes.IsZero())
	assert.True(t, stats.EngagementRate.IsZero())
	assert.Contains(t, stats.Summary, "no tracked posts")
}
