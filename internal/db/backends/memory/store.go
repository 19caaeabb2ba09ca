package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

// Store is an in-memory implementation of interfaces.Store. It mirrors the
// Postgres backend's semantics, including all-or-nothing graph application:
// ApplyGraph stages every change on a copy of the data and adopts the copy
// only on success.
type Store struct {
	mu   sync.RWMutex
	data *dataset

	// upsertHook, when set, runs before each entity upsert inside
	// ApplyGraph. Returning an error aborts the whole graph, which is how
	// tests observe atomicity.
	upsertHook func(entity, naturalKey string) error
}

type dataset struct {
	nextID   int64
	pages    map[int64]entities.Page
	posts    map[int64]entities.Post
	comments map[int64]entities.Comment
	members  map[int64]entities.PageMember
	runs     map[int64]entities.IngestRun
}

func newDataset() *dataset {
	return &dataset{
		nextID:   1,
		pages:    make(map[int64]entities.Page),
		posts:    make(map[int64]entities.Post),
		comments: make(map[int64]entities.Comment),
		members:  make(map[int64]entities.PageMember),
		runs:     make(map[int64]entities.IngestRun),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		nextID:   d.nextID,
		pages:    make(map[int64]entities.Page, len(d.pages)),
		posts:    make(map[int64]entities.Post, len(d.posts)),
		comments: make(map[int64]entities.Comment, len(d.comments)),
		members:  make(map[int64]entities.PageMember, len(d.members)),
		runs:     make(map[int64]entities.IngestRun, len(d.runs)),
	}
	for id, p := range d.pages {
		c.pages[id] = p
	}
	for id, p := range d.posts {
		c.posts[id] = p
	}
	for id, cm := range d.comments {
		c.comments[id] = cm
	}
	for id, m := range d.members {
		c.members[id] = m
	}
	for id, r := range d.runs {
		c.runs[id] = r
	}
	return c
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: newDataset()}
}

// SetUpsertHook installs a hook invoked before every entity upsert during
// ApplyGraph. Pass nil to clear.
func (s *Store) SetUpsertHook(hook func(entity, naturalKey string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertHook = hook
}

func (s *Store) GetPageByKey(ctx context.Context, pageKey string) (*entities.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data.pages {
		if p.PageKey == pageKey {
			page := p
			return &page, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *Store) ListPages(ctx context.Context, filter interfaces.PageFilter, pg interfaces.Pagination) (*interfaces.PageList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pg = pg.Normalize()

	var all []entities.Page
	for _, p := range s.data.pages {
		if filter.FollowerMin != nil && p.TotalFollowers < *filter.FollowerMin {
			continue
		}
		if filter.FollowerMax != nil && p.TotalFollowers > *filter.FollowerMax {
			continue
		}
		if filter.Industry != "" && !strings.Contains(strings.ToLower(p.Industry), strings.ToLower(filter.Industry)) {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items, total := paginate(all, pg)
	return &interfaces.PageList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListPostsByPage(ctx context.Context, pageID int64, pg interfaces.Pagination) (*interfaces.PostList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pg = pg.Normalize()

	var all []entities.Post
	for _, p := range s.data.posts {
		if p.PageID == pageID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].PostedAt.Equal(all[j].PostedAt) {
			return all[i].PostedAt.After(all[j].PostedAt)
		}
		return all[i].ID > all[j].ID
	})

	items, total := paginate(all, pg)
	return &interfaces.PostList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID int64, pg interfaces.Pagination) (*interfaces.CommentList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pg = pg.Normalize()

	var all []entities.Comment
	for _, c := range s.data.comments {
		if c.PostID == postID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CommentedAt.Equal(all[j].CommentedAt) {
			return all[i].CommentedAt.Before(all[j].CommentedAt)
		}
		return all[i].ID < all[j].ID
	})

	items, total := paginate(all, pg)
	return &interfaces.CommentList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ListMembersByPage(ctx context.Context, pageID int64, pg interfaces.Pagination) (*interfaces.MemberList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pg = pg.Normalize()

	var all []entities.PageMember
	for _, m := range s.data.members {
		if m.PageID == pageID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items, total := paginate(all, pg)
	return &interfaces.MemberList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) ApplyGraph(ctx context.Context, graph *entities.PageGraph) (*interfaces.IngestStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	now := time.Now().UTC()

	pageID, err := s.upsertPage(staged, &graph.Page, now)
	if err != nil {
		return nil, err
	}

	for i := range graph.Posts {
		node := &graph.Posts[i]
		postID, err := s.upsertPost(staged, &node.Post, pageID, now)
		if err != nil {
			return nil, err
		}
		for j := range node.Comments {
			if err := s.upsertComment(staged, &node.Comments[j], postID, now); err != nil {
				return nil, err
			}
		}
	}

	for i := range graph.Members {
		if err := s.upsertMember(staged, &graph.Members[i], pageID, now); err != nil {
			return nil, err
		}
	}

	// Commit: everything or nothing.
	s.data = staged

	return &interfaces.IngestStats{
		PageID:           pageID,
		PageKey:          graph.Page.PageKey,
		PostsProcessed:   len(graph.Posts),
		MembersProcessed: len(graph.Members),
	}, nil
}

func (s *Store) upsertPage(d *dataset, in *entities.Page, now time.Time) (int64, error) {
	if s.upsertHook != nil {
		if err := s.upsertHook("page", in.PageKey); err != nil {
			return 0, err
		}
	}

	for id, existing := range d.pages {
		if existing.PageKey == in.PageKey {
			existing.Name = in.Name
			existing.URL = in.URL
			existing.Description = in.Description
			existing.Website = in.Website
			existing.Industry = in.Industry
			existing.TotalFollowers = in.TotalFollowers
			existing.HeadCount = in.HeadCount
			existing.Specialities = in.Specialities
			existing.ProfileImageURL = in.ProfileImageURL
			existing.UpdatedAt = now
			d.pages[id] = existing
			return id, nil
		}
	}

	page := *in
	page.ID = d.nextID
	d.nextID++
	page.CreatedAt = now
	page.UpdatedAt = now
	d.pages[page.ID] = page
	return page.ID, nil
}

func (s *Store) upsertPost(d *dataset, in *entities.Post, pageID int64, now time.Time) (int64, error) {
	if s.upsertHook != nil {
		if err := s.upsertHook("post", in.PostKey); err != nil {
			return 0, err
		}
	}

	for id, existing := range d.posts {
		if existing.PostKey == in.PostKey {
			existing.PageID = pageID
			existing.Content = in.Content
			existing.LikeCount = in.LikeCount
			existing.CommentCount = in.CommentCount
			existing.PostedAt = in.PostedAt
			existing.UpdatedAt = now
			d.posts[id] = existing
			return id, nil
		}
	}

	post := *in
	post.ID = d.nextID
	d.nextID++
	post.PageID = pageID
	post.CreatedAt = now
	post.UpdatedAt = now
	d.posts[post.ID] = post
	return post.ID, nil
}

func (s *Store) upsertComment(d *dataset, in *entities.Comment, postID int64, now time.Time) error {
	if s.upsertHook != nil {
		if err := s.upsertHook("comment", in.CommentKey); err != nil {
			return err
		}
	}

	for id, existing := range d.comments {
		if existing.CommentKey == in.CommentKey {
			existing.PostID = postID
			existing.AuthorName = in.AuthorName
			existing.Content = in.Content
			existing.CommentedAt = in.CommentedAt
			existing.UpdatedAt = now
			d.comments[id] = existing
			return nil
		}
	}

	comment := *in
	comment.ID = d.nextID
	d.nextID++
	comment.PostID = postID
	comment.CreatedAt = now
	comment.UpdatedAt = now
	d.comments[comment.ID] = comment
	return nil
}

func (s *Store) upsertMember(d *dataset, in *entities.PageMember, pageID int64, now time.Time) error {
	if s.upsertHook != nil {
		if err := s.upsertHook("member", in.MemberKey); err != nil {
			return err
		}
	}

	for id, existing := range d.members {
		if existing.MemberKey == in.MemberKey && existing.PageID == pageID {
			existing.Name = in.Name
			existing.Title = in.Title
			existing.ProfileURL = in.ProfileURL
			existing.UpdatedAt = now
			d.members[id] = existing
			return nil
		}
	}

	member := *in
	member.ID = d.nextID
	d.nextID++
	member.PageID = pageID
	member.CreatedAt = now
	member.UpdatedAt = now
	d.members[member.ID] = member
	return nil
}

func (s *Store) RecordIngestRun(ctx context.Context, run *entities.IngestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *run
	stored.ID = s.data.nextID
	s.data.nextID++
	stored.CreatedAt = time.Now().UTC()
	s.data.runs[stored.ID] = stored
	run.ID = stored.ID
	run.CreatedAt = stored.CreatedAt
	return nil
}

func (s *Store) ListIngestRunsByPage(ctx context.Context, pageKey string, pg interfaces.Pagination) (*interfaces.IngestRunList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pg = pg.Normalize()

	var all []entities.IngestRun
	for _, r := range s.data.runs {
		if r.PageKey == pageKey {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})

	items, total := paginate(all, pg)
	return &interfaces.IngestRunList{
		Items: items,
		Meta:  interfaces.ListMeta{Total: total, Page: pg.Page, PageSize: pg.PageSize},
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func paginate[T any](all []T, pg interfaces.Pagination) ([]T, int64) {
	total := int64(len(all))
	start := pg.Offset()
	if start >= len(all) {
		return []T{}, total
	}
	end := start + pg.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total
}
