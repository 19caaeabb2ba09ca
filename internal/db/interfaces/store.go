package interfaces

import (
	"context"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
)

// Store is the storage boundary for page data. All entity mutation goes
// through ApplyGraph; the read methods never write.
type Store interface {
	// GetPageByKey retrieves a page by its natural key.
	GetPageByKey(ctx context.Context, pageKey string) (*entities.Page, error)

	// ListPages retrieves pages matching the filter, paginated.
	ListPages(ctx context.Context, filter PageFilter, pg Pagination) (*PageList, error)

	// ListPostsByPage retrieves a page's posts, newest first.
	ListPostsByPage(ctx context.Context, pageID int64, pg Pagination) (*PostList, error)

	// ListCommentsByPost retrieves a post's comments, oldest first.
	ListCommentsByPost(ctx context.Context, postID int64, pg Pagination) (*CommentList, error)

	// ListMembersByPage retrieves a page's member records.
	ListMembersByPage(ctx context.Context, pageID int64, pg Pagination) (*MemberList, error)

	// ApplyGraph merges one captured page graph into storage inside a single
	// transaction. Every entity is upserted by its natural key; the page's
	// surrogate key is resolved first and threaded to children. A unique
	// violation raised by a concurrent writer on the same natural key is
	// retried exactly once as a re-read and update of that row. Any other
	// failure rolls the whole transaction back.
	ApplyGraph(ctx context.Context, graph *entities.PageGraph) (*IngestStats, error)

	// RecordIngestRun appends one run to the ingestion audit trail. Audit
	// rows are written outside the graph transaction; failed runs are
	// recorded too.
	RecordIngestRun(ctx context.Context, run *entities.IngestRun) error

	// ListIngestRunsByPage retrieves a page's ingestion runs, newest first.
	// Runs are matched by page key, so runs for pages that never persisted
	// are included.
	ListIngestRunsByPage(ctx context.Context, pageKey string, pg Pagination) (*IngestRunList, error)

	// Ping checks storage health.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// IngestStats reports what one ApplyGraph call processed.
type IngestStats struct {
	PageID           int64  `json:"page_id"`
	PageKey          string `json:"page_key"`
	PostsProcessed   int    `json:"posts_processed"`
	MembersProcessed int    `json:"members_processed"`
}
