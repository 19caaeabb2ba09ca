package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

// Store is the Postgres implementation of interfaces.Store, built on
// database/sql with the pgx stdlib driver.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger

	// insertHook, when set, runs after a natural-key lookup misses and
	// before the row insert. Tests use it to slip in a concurrent writer
	// and drive the insert down the conflict-retry path.
	insertHook func(entity, naturalKey string)
}

// New opens a connection pool against the given DSN.
func New(dsn string, logger *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

// SetInsertHook installs a hook invoked between the natural-key lookup miss
// and the insert inside ApplyGraph. Test instrumentation; set before use.
func (s *Store) SetInsertHook(hook func(entity, naturalKey string)) {
	s.insertHook = hook
}

func (s *Store) fireInsertHook(entity, naturalKey string) {
	if s.insertHook != nil {
		s.insertHook(entity, naturalKey)
	}
}

const pageColumns = `id, page_key, name, url, description, website, industry,
	total_followers, head_count, specialities, profile_image_url, created_at, updated_at`

func scanPage(row interface{ Scan(...interface{}) error }) (*entities.Page, error) {
	var p entities.Page
	err := row.Scan(
		&p.ID, &p.PageKey, &p.Name, &p.URL, &p.Description, &p.Website, &p.Industry,
		&p.TotalFollowers, &p.HeadCount, &p.Specialities, &p.ProfileImageURL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPageByKey(ctx context.Context, pageKey string) (*entities.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE page_key = $1`

	page, err := scanPage(s.db.QueryRowContext(ctx, query, pageKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get page by key: %w", err)
	}
	return page, nil
}

func (s *Store) ListPages(ctx context.Context, filter interfaces.PageFilter, pg interfaces.Pagination) (*interfaces.PageList, error) {
	pg = pg.Normalize()

	where := " WHERE 1=1"
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.FollowerMin != nil {
		where += " AND total_followers >= " + arg(*filter.FollowerMin)
	}
	if filter.FollowerMax != nil {
		where += " AND total_followers <= " + arg(*filter.FollowerMax)
	}
	if filter.Industry != "" {
		where += " AND industry ILIKE " + arg("%"+filter.Industry+"%")
	}
	if filter.Name != "" {
		where += " AND name ILIKE " + arg("%"+filter.Name+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	query := "SELECT " + pageColumns + " FROM pages" + where +
		" ORDER BY id ASC LIMIT " + arg(pg.PageSize) + " OFFSET " + arg(pg.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	items := []entities.Page{}
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		items = append(items, *page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages: %w", err)
	}

	return &interfaces.PageList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListPostsByPage(ctx context.Context, pageID int64, pg interfaces.Pagination) (*interfaces.PostList, error) {
	pg = pg.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE page_id = $1`, pageID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_key, page_id, content, like_count, comment_count, posted_at, created_at, updated_at
		FROM posts
		WHERE page_id = $1
		ORDER BY posted_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pageID, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	items := []entities.Post{}
	for rows.Next() {
		var p entities.Post
		if err := rows.Scan(&p.ID, &p.PostKey, &p.PageID, &p.Content, &p.LikeCount,
			&p.CommentCount, &p.PostedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return &interfaces.PostList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID int64, pg interfaces.Pagination) (*interfaces.CommentList, error) {
	pg = pg.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = $1`, postID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comment_key, post_id, author_name, content, commented_at, created_at, updated_at
		FROM comments
		WHERE post_id = $1
		ORDER BY commented_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, postID, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	items := []entities.Comment{}
	for rows.Next() {
		var c entities.Comment
		if err := rows.Scan(&c.ID, &c.CommentKey, &c.PostID, &c.AuthorName, &c.Content,
			&c.CommentedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return &interfaces.CommentList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListMembersByPage(ctx context.Context, pageID int64, pg interfaces.Pagination) (*interfaces.MemberList, error) {
	pg = pg.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM page_members WHERE page_id = $1`, pageID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_key, page_id, name, title, profile_url, created_at, updated_at
		FROM page_members
		WHERE page_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, pageID, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	items := []entities.PageMember{}
	for rows.Next() {
		var m entities.PageMember
		if err := rows.Scan(&m.ID, &m.MemberKey, &m.PageID, &m.Name, &m.Title,
			&m.ProfileURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return &interfaces.MemberList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

// ApplyGraph merges the captured graph in one transaction: page first, then
// posts, comments and members, each upserted by natural key with the page's
// (or post's) surrogate key threaded to its children. A unique violation on
// insert means a concurrent writer won the insert race; that row is re-read
// and updated instead, once. Any other error rolls everything back.
func (s *Store) ApplyGraph(ctx context.Context, graph *entities.PageGraph) (*interfaces.IngestStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	pageID, err := s.upsertPage(ctx, tx, &graph.Page)
	if err != nil {
		return nil, err
	}

	for i := range graph.Posts {
		node := &graph.Posts[i]
		postID, err := s.upsertPost(ctx, tx, &node.Post, pageID)
		if err != nil {
			return nil, err
		}
		for j := range node.Comments {
			if err := s.upsertComment(ctx, tx, &node.Comments[j], postID); err != nil {
				return nil, err
			}
		}
	}

	for i := range graph.Members {
		if err := s.upsertMember(ctx, tx, &graph.Members[i], pageID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.logger.Debugw("Applied page graph",
		"page_key", graph.Page.PageKey,
		"page_id", pageID,
		"posts", len(graph.Posts),
		"members", len(graph.Members),
	)

	return &interfaces.IngestStats{
		PageID:           pageID,
		PageKey:          graph.Page.PageKey,
		PostsProcessed:   len(graph.Posts),
		MembersProcessed: len(graph.Members),
	}, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// insertWithConflictRetry runs insert under a savepoint so a unique violation
// does not abort the enclosing transaction. On a unique violation it rolls
// back to the savepoint and runs onConflict exactly once; any other insert
// error is returned as-is.
func insertWithConflictRetry(ctx context.Context, tx *sql.Tx, insert, onConflict func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT upsert_row"); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	err := insert()
	if err == nil {
		if _, rerr := tx.ExecContext(ctx, "RELEASE SAVEPOINT upsert_row"); rerr != nil {
			return fmt.Errorf("failed to release savepoint: %w", rerr)
		}
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}

	if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT upsert_row"); rbErr != nil {
		return fmt.Errorf("failed to roll back to savepoint: %w", rbErr)
	}
	return onConflict()
}

func (s *Store) upsertPage(ctx context.Context, tx *sql.Tx, in *entities.Page) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM pages WHERE page_key = $1`, in.PageKey).Scan(&id)

	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE pages SET name = $2, url = $3, description = $4, website = $5,
				industry = $6, total_followers = $7, head_count = $8,
				specialities = $9, profile_image_url = $10, updated_at = now()
			WHERE id = $1
		`, id, in.Name, in.URL, in.Description, in.Website, in.Industry,
			in.TotalFollowers, in.HeadCount, in.Specialities, in.ProfileImageURL); err != nil {
			return 0, fmt.Errorf("failed to update page %s: %w", in.PageKey, err)
		}
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		s.fireInsertHook("page", in.PageKey)
		insert := func() error {
			return tx.QueryRowContext(ctx, `
				INSERT INTO pages (page_key, name, url, description, website, industry,
					total_followers, head_count, specialities, profile_image_url)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id
			`, in.PageKey, in.Name, in.URL, in.Description, in.Website, in.Industry,
				in.TotalFollowers, in.HeadCount, in.Specialities, in.ProfileImageURL).Scan(&id)
		}
		onConflict := func() error {
			// Lost the insert race to a concurrent ingestion of the same
			// page; re-read the winner's row and update it instead.
			s.logger.Warnw("Page insert conflicted with concurrent writer, retrying as update",
				"page_key", in.PageKey)
			var retryErr error
			id, retryErr = s.retryPageAsUpdate(ctx, tx, in)
			return retryErr
		}
		if err := insertWithConflictRetry(ctx, tx, insert, onConflict); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", in.PageKey, err)
		}
		return id, nil

	default:
		return 0, fmt.Errorf("failed to look up page %s: %w", in.PageKey, err)
	}
}

func (s *Store) retryPageAsUpdate(ctx context.Context, tx *sql.Tx, in *entities.Page) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM pages WHERE page_key = $1`, in.PageKey).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: page %s vanished after insert conflict: %v",
			interfaces.ErrUniqueConstraint, in.PageKey, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE pages SET name = $2, url = $3, description = $4, website = $5,
			industry = $6, total_followers = $7, head_count = $8,
			specialities = $9, profile_image_url = $10, updated_at = now()
		WHERE id = $1
	`, id, in.Name, in.URL, in.Description, in.Website, in.Industry,
		in.TotalFollowers, in.HeadCount, in.Specialities, in.ProfileImageURL); err != nil {
		return 0, fmt.Errorf("failed to update page %s after conflict: %w", in.PageKey, err)
	}
	return id, nil
}

func (s *Store) upsertPost(ctx context.Context, tx *sql.Tx, in *entities.Post, pageID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE post_key = $1`, in.PostKey).Scan(&id)

	update := func(id int64) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE posts SET page_id = $2, content = $3, like_count = $4,
				comment_count = $5, posted_at = $6, updated_at = now()
			WHERE id = $1
		`, id, pageID, in.Content, in.LikeCount, in.CommentCount, in.PostedAt)
		return err
	}

	switch {
	case err == nil:
		if err := update(id); err != nil {
			return 0, fmt.Errorf("failed to update post %s: %w", in.PostKey, err)
		}
		return id, nil

	case errors.Is(err, sql.ErrNoRows):
		s.fireInsertHook("post", in.PostKey)
		insert := func() error {
			return tx.QueryRowContext(ctx, `
				INSERT INTO posts (post_key, page_id, content, like_count, comment_count, posted_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
			`, in.PostKey, pageID, in.Content, in.LikeCount, in.CommentCount, in.PostedAt).Scan(&id)
		}
		onConflict := func() error {
			s.logger.Warnw("Post insert conflicted with concurrent writer, retrying as update",
				"post_key", in.PostKey)
			if err := tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE post_key = $1`, in.PostKey).Scan(&id); err != nil {
				return fmt.Errorf("%w: post %s vanished after insert conflict: %v",
					interfaces.ErrUniqueConstraint, in.PostKey, err)
			}
			return update(id)
		}
		if err := insertWithConflictRetry(ctx, tx, insert, onConflict); err != nil {
			return 0, fmt.Errorf("failed to insert post %s: %w", in.PostKey, err)
		}
		return id, nil

	default:
		return 0, fmt.Errorf("failed to look up post %s: %w", in.PostKey, err)
	}
}

func (s *Store) upsertComment(ctx context.Context, tx *sql.Tx, in *entities.Comment, postID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM comments WHERE comment_key = $1`, in.CommentKey).Scan(&id)

	update := func(id int64) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE comments SET post_id = $2, author_name = $3, content = $4,
				commented_at = $5, updated_at = now()
			WHERE id = $1
		`, id, postID, in.AuthorName, in.Content, in.CommentedAt)
		return err
	}

	switch {
	case err == nil:
		if err := update(id); err != nil {
			return fmt.Errorf("failed to update comment %s: %w", in.CommentKey, err)
		}
		return nil

	case errors.Is(err, sql.ErrNoRows):
		s.fireInsertHook("comment", in.CommentKey)
		insert := func() error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO comments (comment_key, post_id, author_name, content, commented_at)
				VALUES ($1, $2, $3, $4, $5)
			`, in.CommentKey, postID, in.AuthorName, in.Content, in.CommentedAt)
			return err
		}
		onConflict := func() error {
			s.logger.Warnw("Comment insert conflicted with concurrent writer, retrying as update",
				"comment_key", in.CommentKey)
			if err := tx.QueryRowContext(ctx, `SELECT id FROM comments WHERE comment_key = $1`, in.CommentKey).Scan(&id); err != nil {
				return fmt.Errorf("%w: comment %s vanished after insert conflict: %v",
					interfaces.ErrUniqueConstraint, in.CommentKey, err)
			}
			return update(id)
		}
		if err := insertWithConflictRetry(ctx, tx, insert, onConflict); err != nil {
			return fmt.Errorf("failed to insert comment %s: %w", in.CommentKey, err)
		}
		return nil

	default:
		return fmt.Errorf("failed to look up comment %s: %w", in.CommentKey, err)
	}
}

func (s *Store) upsertMember(ctx context.Context, tx *sql.Tx, in *entities.PageMember, pageID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM page_members WHERE member_key = $1 AND page_id = $2`,
		in.MemberKey, pageID).Scan(&id)

	update := func(id int64) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE page_members SET name = $2, title = $3, profile_url = $4, updated_at = now()
			WHERE id = $1
		`, id, in.Name, in.Title, in.ProfileURL)
		return err
	}

	switch {
	case err == nil:
		if err := update(id); err != nil {
			return fmt.Errorf("failed to update member %s: %w", in.MemberKey, err)
		}
		return nil

	case errors.Is(err, sql.ErrNoRows):
		s.fireInsertHook("member", in.MemberKey)
		insert := func() error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO page_members (member_key, page_id, name, title, profile_url)
				VALUES ($1, $2, $3, $4, $5)
			`, in.MemberKey, pageID, in.Name, in.Title, in.ProfileURL)
			return err
		}
		onConflict := func() error {
			s.logger.Warnw("Member insert conflicted with concurrent writer, retrying as update",
				"member_key", in.MemberKey)
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM page_members WHERE member_key = $1 AND page_id = $2`,
				in.MemberKey, pageID).Scan(&id); err != nil {
				return fmt.Errorf("%w: member %s vanished after insert conflict: %v",
					interfaces.ErrUniqueConstraint, in.MemberKey, err)
			}
			return update(id)
		}
		if err := insertWithConflictRetry(ctx, tx, insert, onConflict); err != nil {
			return fmt.Errorf("failed to insert member %s: %w", in.MemberKey, err)
		}
		return nil

	default:
		return fmt.Errorf("failed to look up member %s: %w", in.MemberKey, err)
	}
}

func (s *Store) RecordIngestRun(ctx context.Context, run *entities.IngestRun) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO scraper_runs (run_key, page_key, status, error_message,
			posts_processed, members_processed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, run.RunKey, run.PageKey, run.Status, run.Error,
		run.PostsProcessed, run.MembersProcessed, run.StartedAt, run.FinishedAt,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record ingest run %s: %w", run.RunKey, err)
	}
	return nil
}

func (s *Store) ListIngestRunsByPage(ctx context.Context, pageKey string, pg interfaces.Pagination) (*interfaces.IngestRunList, error) {
	pg = pg.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scraper_runs WHERE page_key = $1`, pageKey).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count ingest runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_key, page_key, status, error_message,
			posts_processed, members_processed, started_at, finished_at, created_at
		FROM scraper_runs
		WHERE page_key = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pageKey, pg.PageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer rows.Close()

	items := []entities.IngestRun{}
	for rows.Next() {
		var r entities.IngestRun
		if err := rows.Scan(&r.ID, &r.RunKey, &r.PageKey, &r.Status, &r.Error,
			&r.PostsProcessed, &r.MembersProcessed, &r.StartedAt, &r.FinishedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingest runs: %w", err)
	}

	return &interfaces.IngestRunList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
