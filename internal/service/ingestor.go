package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	"github.com/pageinsights/pageinsights-backend/internal/metrics"
	"github.com/pageinsights/pageinsights-backend/internal/scrape"
	cachestore "github.com/pageinsights/pageinsights-backend/internal/store"
)

// Phase names an ingestion stage, used in logs.
type Phase string

const (
	PhaseAcquiring    Phase = "acquiring"
	PhasePersisting   Phase = "persisting"
	PhaseInvalidating Phase = "invalidating"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Acquirer obtains one validated page graph from the outside world.
type Acquirer interface {
	Acquire(ctx context.Context, pageKey string) (*entities.PageGraph, error)
}

// IngestResult is the stable outcome shape of one ingestion run.
type IngestResult struct {
	RunID              string    `json:"run_id"`
	Success            bool      `json:"success"`
	PageID             int64     `json:"page_id,omitempty"`
	PageKey            string    `json:"page_key"`
	PostsProcessed     int       `json:"posts_processed"`
	EmployeesProcessed int       `json:"employees_processed"`
	ProcessedAt        time.Time `json:"processed_at"`
	Error              string    `json:"error,omitempty"`

	// FailureKind is set when acquisition failed; the HTTP layer maps it
	// to a status code.
	FailureKind scrape.FailureKind `json:"-"`
}

// Ingestor runs the full ingestion pipeline for one page: acquire a
// snapshot, persist it atomically, then drop stale cached views. A snapshot
// that fails to persist is discarded entirely; it never reaches the cache.
type Ingestor struct {
	acquirer Acquirer
	store    interfaces.Store
	cache    *cachestore.Cache
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewIngestor(acquirer Acquirer, store interfaces.Store, cache *cachestore.Cache, logger *zap.SugaredLogger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		acquirer: acquirer,
		store:    store,
		cache:    cache,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (ing *Ingestor) Ingest(ctx context.Context, pageKey string) *IngestResult {
	runID := uuid.NewString()
	startedAt := ing.now().UTC()
	log := ing.logger.With("run_id", runID, "page_key", pageKey)

	res := &IngestResult{RunID: runID, PageKey: pageKey}

	log.Infow("Ingestion run started", "phase", PhaseAcquiring)
	graph, err := ing.acquirer.Acquire(ctx, pageKey)
	if err != nil {
		return ing.fail(ctx, log, res, startedAt, PhaseAcquiring, err)
	}

	log.Infow("Snapshot acquired",
		"phase", PhasePersisting,
		"posts", len(graph.Posts),
		"employees", len(graph.Members))
	stats, err := ing.store.ApplyGraph(ctx, graph)
	if err != nil {
		return ing.fail(ctx, log, res, startedAt, PhasePersisting, err)
	}

	res.PageID = stats.PageID
	res.PostsProcessed = stats.PostsProcessed
	res.EmployeesProcessed = stats.MembersProcessed

	// Invalidation cannot fail the run; a degraded cache just means
	// readers see stale data until TTL expiry.
	log.Infow("Snapshot persisted", "phase", PhaseInvalidating, "page_id", stats.PageID)
	removed := ing.cache.InvalidatePage(ctx, pageKey)

	res.Success = true
	res.ProcessedAt = ing.now().UTC()
	if ing.metrics != nil {
		ing.metrics.RecordIngest(ctx, "success")
	}
	ing.recordRun(ctx, log, res, startedAt)
	log.Infow("Ingestion run finished",
		"phase", PhaseDone,
		"page_id", res.PageID,
		"posts_processed", res.PostsProcessed,
		"employees_processed", res.EmployeesProcessed,
		"cache_entries_removed", removed)
	return res
}

func (ing *Ingestor) fail(ctx context.Context, log *zap.SugaredLogger, res *IngestResult, startedAt time.Time, phase Phase, err error) *IngestResult {
	res.Success = false
	res.Error = err.Error()
	res.FailureKind = scrape.KindOf(err)
	res.ProcessedAt = ing.now().UTC()
	if ing.metrics != nil {
		ing.metrics.RecordIngest(ctx, "failed")
	}
	ing.recordRun(ctx, log, res, startedAt)
	log.Warnw("Ingestion run failed", "phase", PhaseFailed, "failed_during", phase, "error", err)
	return res
}

// recordRun appends the run to the audit trail. The trail must not be able
// to fail a run, so errors are logged and dropped.
func (ing *Ingestor) recordRun(ctx context.Context, log *zap.SugaredLogger, res *IngestResult, startedAt time.Time) {
	run := &entities.IngestRun{
		RunKey:           res.RunID,
		PageKey:          res.PageKey,
		Status:           entities.RunSucceeded,
		PostsProcessed:   res.PostsProcessed,
		MembersProcessed: res.EmployeesProcessed,
		StartedAt:        startedAt,
		FinishedAt:       res.ProcessedAt,
	}
	if !res.Success {
		run.Status = entities.RunFailed
		run.Error = res.Error
	}
	if err := ing.store.RecordIngestRun(ctx, run); err != nil {
		log.Warnw("Failed to record ingestion run", "error", err)
	}
}
