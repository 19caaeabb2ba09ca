package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

func acmeGraph() *entities.PageGraph {
	postedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &entities.PageGraph{
		Page: entities.Page{
			PageKey:        "acme-corp",
			Name:           "Acme Corp",
			URL:            "https://example.com/company/acme-corp",
			Industry:       "Manufacturing",
			TotalFollowers: 1200,
			HeadCount:      85,
		},
		Posts: []entities.PostNode{
			{
				Post: entities.Post{
					PostKey:      "post-1",
					Content:      "We are hiring!",
					LikeCount:    10,
					CommentCount: 2,
					PostedAt:     postedAt,
				},
				Comments: []entities.Comment{
					{CommentKey: "c-1", AuthorName: "Ann", Content: "Great news", CommentedAt: postedAt.Add(time.Hour)},
					{CommentKey: "c-2", AuthorName: "Bob", Content: "Applied!", CommentedAt: postedAt.Add(2 * time.Hour)},
				},
			},
			{
				Post: entities.Post{
					PostKey:      "post-2",
					Content:      "Q1 results are in",
					LikeCount:    4,
					CommentCount: 1,
					PostedAt:     postedAt.Add(24 * time.Hour),
				},
				Comments: []entities.Comment{
					{CommentKey: "c-3", AuthorName: "Cid", Content: "Congrats", CommentedAt: postedAt.Add(25 * time.Hour)},
				},
			},
		},
		Members: []entities.PageMember{
			{MemberKey: "u-1", Name: "Dana", Title: "Engineer", ProfileURL: "https://example.com/in/u-1"},
		},
		CapturedAt: time.Now().UTC(),
	}
}

func TestApplyGraphIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, err := store.ApplyGraph(ctx, acmeGraph())
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", first.PageKey)
	assert.Equal(t, 2, first.PostsProcessed)
	assert.Equal(t, 1, first.MembersProcessed)

	second, err := store.ApplyGraph(ctx, acmeGraph())
	require.NoError(t, err)
	assert.Equal(t, first.PageID, second.PageID, "surrogate page id must be stable across re-ingests")

	page, err := store.GetPageByKey(ctx, "acme-corp")
	require.NoError(t, err)

	posts, err := store.ListPostsByPage(ctx, page.ID, interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), posts.Meta.Total, "re-ingest must not duplicate posts")

	members, err := store.ListMembersByPage(ctx, page.ID, interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), members.Meta.Total)
}

func TestApplyGraphUpdatesAndExtends(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.ApplyGraph(ctx, acmeGraph())
	require.NoError(t, err)

	page, err := store.GetPageByKey(ctx, "acme-corp")
	require.NoError(t, err)
	firstPostID := findPostID(t, ctx, store, page.ID, "post-1")

	// Second capture: follower count moved, post-1 gained a comment.
	updated := acmeGraph()
	updated.Page.TotalFollowers = 1300
	updated.Posts[0].Post.CommentCount = 3
	updated.Posts[0].Comments = append(updated.Posts[0].Comments, entities.Comment{
		CommentKey:  "c-4",
		AuthorName:  "Eve",
		Content:     "Late to the party",
		CommentedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	})

	_, err = store.ApplyGraph(ctx, updated)
	require.NoError(t, err)

	page, err = store.GetPageByKey(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, 1300, page.TotalFollowers)

	assert.Equal(t, firstPostID, findPostID(t, ctx, store, page.ID, "post-1"))

	comments, err := store.ListCommentsByPost(ctx, firstPostID, interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), comments.Meta.Total)
	// Chronological order.
	keys := make([]string, 0, len(comments.Items))
	for _, c := range comments.Items {
		keys = append(keys, c.CommentKey)
	}
	assert.Equal(t, []string{"c-1", "c-2", "c-4"}, keys)
}

func TestApplyGraphAtomicity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	boom := errors.New("boom")
	store.SetUpsertHook(func(entity, naturalKey string) error {
		if entity == "comment" && naturalKey == "c-3" {
			return boom
		}
		return nil
	})

	_, err := store.ApplyGraph(ctx, acmeGraph())
	require.ErrorIs(t, err, boom)

	// The failed graph must leave no trace, not even the page row.
	_, err = store.GetPageByKey(ctx, "acme-corp")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	store.SetUpsertHook(nil)
	stats, err := store.ApplyGraph(ctx, acmeGraph())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PostsProcessed)
}

func TestGetPageByKeyNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetPageByKey(context.Background(), "no-such-page")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestListPagesFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i, key := range []string{"alpha", "beta", "gamma"} {
		g := acmeGraph()
		g.Page.PageKey = key
		g.Page.Name = "Page " + key
		g.Page.Industry = "Software"
		g.Page.TotalFollowers = (i + 1) * 1000
		g.Posts = nil
		g.Members = nil
		_, err := store.ApplyGraph(ctx, g)
		require.NoError(t, err)
	}

	min := 1500
	list, err := store.ListPages(ctx, interfaces.PageFilter{FollowerMin: &min}, interfaces.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Meta.Total)

	list, err = store.ListPages(ctx, interfaces.PageFilter{Name: "gam"}, interfaces.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "gamma", list.Items[0].PageKey)

	list, err = store.ListPages(ctx, interfaces.PageFilter{}, interfaces.Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Meta.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 2, list.Meta.TotalPages())
	assert.False(t, list.Meta.HasNext())
	assert.True(t, list.Meta.HasPrevious())
}

func TestRecordAndListIngestRuns(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	started := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	runs := []entities.IngestRun{
		{RunKey: "run-1", PageKey: "acme-corp", Status: entities.RunSucceeded,
			PostsProcessed: 2, MembersProcessed: 1, StartedAt: started, FinishedAt: started.Add(time.Second)},
		{RunKey: "run-2", PageKey: "acme-corp", Status: entities.RunFailed,
			Error: "upstream unreachable", StartedAt: started.Add(time.Minute), FinishedAt: started.Add(time.Minute + time.Second)},
		{RunKey: "run-3", PageKey: "globex", Status: entities.RunSucceeded,
			StartedAt: started.Add(2 * time.Minute), FinishedAt: started.Add(2*time.Minute + time.Second)},
	}
	for i := range runs {
		require.NoError(t, store.RecordIngestRun(ctx, &runs[i]))
		assert.NotZero(t, runs[i].ID)
		assert.False(t, runs[i].CreatedAt.IsZero())
	}

	list, err := store.ListIngestRunsByPage(ctx, "acme-corp", interfaces.Pagination{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, int64(2), list.Meta.Total)

	// Newest first, and the failed run keeps its error.
	assert.Equal(t, "run-2", list.Items[0].RunKey)
	assert.Equal(t, entities.RunFailed, list.Items[0].Status)
	assert.Equal(t, "upstream unreachable", list.Items[0].Error)
	assert.Equal(t, "run-1", list.Items[1].RunKey)

	other, err := store.ListIngestRunsByPage(ctx, "unknown", interfaces.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestListPostsOrderedNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.ApplyGraph(ctx, acmeGraph())
	require.NoError(t, err)

	page, err := store.GetPageByKey(ctx, "acme-corp")
	require.NoError(t, err)

	posts, err := store.ListPostsByPage(ctx, page.ID, interfaces.Pagination{})
	require.NoError(t, err)
	require.Len(t, posts.Items, 2)
	assert.Equal(t, "post-2", posts.Items[0].PostKey)
	assert.Equal(t, "post-1", posts.Items[1].PostKey)
}

func findPostID(t *testing.T, ctx context.Context, store *Store, pageID int64, postKey string) int64 {
	t.Helper()
	posts, err := store.ListPostsByPage(ctx, pageID, interfaces.Pagination{})
	require.NoError(t, err)
	for _, p := range posts.Items {
		if p.PostKey == postKey {
			return p.ID
		}
	}
	t.Fatalf("post %s not found", postKey)
	return 0
}
