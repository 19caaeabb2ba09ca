package scrape

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/config"
	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/metrics"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
)

// Guard wraps a Fetcher with per-attempt timeouts, a retry ceiling for
// transient failures, and terminal classification. NotFound and malformed
// payloads fail immediately; only timeouts and transport errors are retried.
type Guard struct {
	fetcher    Fetcher
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewGuard(fetcher Fetcher, cfg config.ScraperConfig, logger *zap.SugaredLogger, m *metrics.Metrics) *Guard {
	g := &Guard{
		fetcher:    fetcher,
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.attempts <= 0 {
		g.attempts = defaultAttempts
	}
	if g.retryDelay <= 0 {
		g.retryDelay = defaultRetryDelay
	}
	return g
}

// Acquire fetches and normalizes one page snapshot. On failure the returned
// error is always an *AcquireError carrying the terminal classification.
func (g *Guard) Acquire(ctx context.Context, pageKey string) (*entities.PageGraph, error) {
	var lastErr error

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if g.metrics != nil {
			g.metrics.RecordScrapeAttempt(ctx, pageKey)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		raw, err := g.fetcher.FetchPage(attemptCtx, pageKey)
		cancel()

		if err == nil {
			graph, nerr := Normalize(raw, g.now().UTC())
			if nerr != nil {
				return nil, g.fail(ctx, pageKey, MalformedResult, nerr)
			}
			return graph, nil
		}

		if errors.Is(err, ErrPageNotFound) {
			return nil, g.fail(ctx, pageKey, NotFound, err)
		}
		if errors.Is(err, ErrMalformedPayload) {
			return nil, g.fail(ctx, pageKey, MalformedResult, err)
		}

		lastErr = err
		g.logger.Warnw("Scrape attempt failed",
			"page_key", pageKey,
			"attempt", attempt,
			"max_attempts", g.attempts,
			"error", err)

		if attempt == g.attempts {
			break
		}
		if err := g.wait(ctx); err != nil {
			lastErr = err
			break
		}
	}

	return nil, g.fail(ctx, pageKey, TransientError, lastErr)
}

// wait sleeps the base retry delay plus up to 50% jitter, or until the
// caller's context is done.
func (g *Guard) wait(ctx context.Context) error {
	delay := g.retryDelay + time.Duration(rand.Int63n(int64(g.retryDelay)/2+1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Guard) fail(ctx context.Context, pageKey string, kind FailureKind, err error) error {
	if g.metrics != nil {
		g.metrics.RecordScrapeFailure(ctx, string(kind))
	}
	g.logger.Warnw("Scrape failed", "page_key", pageKey, "kind", kind, "error", err)
	return &AcquireError{Kind: kind, PageKey: pageKey, Err: err}
}
