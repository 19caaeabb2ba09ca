package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	"github.com/pageinsights/pageinsights-backend/internal/scrape"
	cachestore "github.com/pageinsights/pageinsights-backend/internal/store"
)

// PageService serves page reads through the cache. When scrape-on-miss is
// enabled, a page absent from the store triggers a full ingestion run before
// the read is answered.
type PageService struct {
	store        interfaces.Store
	cache        *cachestore.Cache
	ingestor     *Ingestor
	scrapeOnMiss bool
	logger       *zap.SugaredLogger
}

func NewPageService(store interfaces.Store, cache *cachestore.Cache, ingestor *Ingestor, scrapeOnMiss bool, logger *zap.SugaredLogger) *PageService {
	return &PageService{
		store:        store,
		cache:        cache,
		ingestor:     ingestor,
		scrapeOnMiss: scrapeOnMiss,
		logger:       logger,
	}
}

func (s *PageService) GetPage(ctx context.Context, pageKey string) (*entities.Page, error) {
	key := cachestore.PageCacheKey(pageKey)

	var cached entities.Page
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	page, err := s.store.GetPageByKey(ctx, pageKey)
	if errors.Is(err, interfaces.ErrNotFound) && s.scrapeOnMiss && s.ingestor != nil {
		s.logger.Infow("Page not in store; scraping on miss", "page_key", pageKey)
		res := s.ingestor.Ingest(ctx, pageKey)
		if !res.Success {
			if res.FailureKind == scrape.NotFound {
				return nil, interfaces.ErrNotFound
			}
			return nil, fmt.Errorf("scrape on miss failed: %s", res.Error)
		}
		page, err = s.store.GetPageByKey(ctx, pageKey)
	}
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, key, page, 0)
	return page, nil
}

func (s *PageService) ListPages(ctx context.Context, filter interfaces.PageFilter, pg interfaces.Pagination) (*interfaces.PageList, error) {
	pg = pg.Normalize()
	var list interfaces.PageList
	err := s.cache.WithCache(ctx, cachestore.PageListCacheKey(filter, pg), 0, &list, func(ctx context.Context) (interface{}, error) {
		return s.store.ListPages(ctx, filter, pg)
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (s *PageService) ListPosts(ctx context.Context, pageKey string, pg interfaces.Pagination) (*interfaces.PostList, error) {
	pg = pg.Normalize()
	page, err := s.store.GetPageByKey(ctx, pageKey)
	if err != nil {
		return nil, err
	}

	var list interfaces.PostList
	err = s.cache.WithCache(ctx, cachestore.PostsCacheKey(pageKey, pg), 0, &list, func(ctx context.Context) (interface{}, error) {
		return s.store.ListPostsByPage(ctx, page.ID, pg)
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// ListFollowers returns the employee records associated with a page.
func (s *PageService) ListFollowers(ctx context.Context, pageKey string, pg interfaces.Pagination) (*interfaces.MemberList, error) {
	pg = pg.Normalize()
	page, err := s.store.GetPageByKey(ctx, pageKey)
	if err != nil {
		return nil, err
	}

	var list interfaces.MemberList
	err = s.cache.WithCache(ctx, cachestore.FollowersCacheKey(pageKey, pg), 0, &list, func(ctx context.Context) (interface{}, error) {
		return s.store.ListMembersByPage(ctx, page.ID, pg)
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// ListRuns returns a page's ingestion history, newest first. Audit reads
// bypass the cache so a run that just finished is visible immediately; they
// also match on page key alone, so failed runs against keys that never
// persisted a page still show up.
func (s *PageService) ListRuns(ctx context.Context, pageKey string, pg interfaces.Pagination) (*interfaces.IngestRunList, error) {
	return s.store.ListIngestRunsByPage(ctx, pageKey, pg.Normalize())
}

// ListComments returns the comments under one post of a page.
func (s *PageService) ListComments(ctx context.Context, postID int64, pg interfaces.Pagination) (*interfaces.CommentList, error) {
	return s.store.ListCommentsByPost(ctx, postID, pg.Normalize())
}
