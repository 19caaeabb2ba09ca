package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	cachestore "github.com/pageinsights/pageinsights-backend/internal/store"
)

// EngagementSummary aggregates engagement over every stored post of a page.
type EngagementSummary struct {
	PageKey        string          `json:"page_key"`
	PageName       string          `json:"page_name"`
	TotalFollowers int             `json:"total_followers"`
	PostCount      int64           `json:"post_count"`
	TotalLikes     int64           `json:"total_likes"`
	TotalComments  int64           `json:"total_comments"`
	AvgLikes       decimal.Decimal `json:"avg_likes"`
	AvgComments    decimal.Decimal `json:"avg_comments"`
	// EngagementRate is average interactions per post relative to the
	// follower count, in percent.
	EngagementRate decimal.Decimal `json:"engagement_rate"`
	Summary        string          `json:"summary"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Summarizer renders a human-readable summary for a page. The production
// text generator lives behind this boundary; StaticSummarizer is the
// built-in fallback.
type Summarizer interface {
	Summarize(ctx context.Context, page *entities.Page, stats *EngagementSummary) (string, error)
}

// StaticSummarizer builds a plain templated summary from the numbers.
type StaticSummarizer struct{}

func (StaticSummarizer) Summarize(_ context.Context, page *entities.Page, stats *EngagementSummary) (string, error) {
	if stats.PostCount == 0 {
		return fmt.Sprintf("%s has %d followers and no tracked posts yet.", page.Name, page.TotalFollowers), nil
	}
	return fmt.Sprintf("%s has %d followers across %d tracked posts, averaging %s likes and %s comments per post (engagement rate %s%%).",
		page.Name, page.TotalFollowers, stats.PostCount,
		stats.AvgLikes.StringFixed(2), stats.AvgComments.StringFixed(2),
		stats.EngagementRate.StringFixed(2)), nil
}

// InsightService computes engagement statistics over stored posts.
type InsightService struct {
	store      interfaces.Store
	cache      *cachestore.Cache
	summarizer Summarizer
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewInsightService(store interfaces.Store, cache *cachestore.Cache, summarizer Summarizer, logger *zap.SugaredLogger) *InsightService {
	if summarizer == nil {
		summarizer = StaticSummarizer{}
	}
	return &InsightService{
		store:      store,
		cache:      cache,
		summarizer: summarizer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *InsightService) Summarize(ctx context.Context, pageKey string) (*EngagementSummary, error) {
	var cached EngagementSummary
	key := cachestore.SummaryCacheKey(pageKey)
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	page, err := s.store.GetPageByKey(ctx, pageKey)
	if err != nil {
		return nil, err
	}

	stats := &EngagementSummary{
		PageKey:        page.PageKey,
		PageName:       page.Name,
		TotalFollowers: page.TotalFollowers,
		AvgLikes:       decimal.Zero,
		AvgComments:    decimal.Zero,
		EngagementRate: decimal.Zero,
		GeneratedAt:    s.now().UTC(),
	}

	pg := interfaces.Pagination{Page: 1, PageSize: interfaces.MaxPageSize}
	for {
		posts, err := s.store.ListPostsByPage(ctx, page.ID, pg)
		if err != nil {
			return nil, err
		}
		for _, p := range posts.Items {
			stats.TotalLikes += int64(p.LikeCount)
			stats.TotalComments += int64(p.CommentCount)
		}
		stats.PostCount = posts.Meta.Total
		if !posts.Meta.HasNext() {
			break
		}
		pg.Page++
	}

	if stats.PostCount > 0 {
		n := decimal.NewFromInt(stats.PostCount)
		stats.AvgLikes = decimal.NewFromInt(stats.TotalLikes).DivRound(n, 4)
		stats.AvgComments = decimal.NewFromInt(stats.TotalComments).DivRound(n, 4)
		if page.TotalFollowers > 0 {
			perPost := stats.AvgLikes.Add(stats.AvgComments)
			stats.EngagementRate = perPost.
				DivRound(decimal.NewFromInt(int64(page.TotalFollowers)), 6).
				Mul(decimal.NewFromInt(100)).
				Round(4)
		}
	}

	summary, err := s.summarizer.Summarize(ctx, page, stats)
	if err != nil {
		s.logger.Warnw("Summarizer failed; serving numbers only", "page_key", pageKey, "error", err)
	} else {
		stats.Summary = summary
	}

	_ = s.cache.Set(ctx, key, stats, 0)
	return stats, nil
}
