package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
	"github.com/pageinsights/pageinsights-backend/internal/scrape"
	"github.com/pageinsights/pageinsights-backend/internal/service"
	cachestore "github.com/pageinsights/pageinsights-backend/internal/store"
)

type Handler struct {
	pages    *service.PageService
	insights *service.InsightService
	ingestor *service.Ingestor
	store    interfaces.Store
	cache    *cachestore.Cache
	logger   *zap.SugaredLogger
}

func NewHandler(
	pages *service.PageService,
	insights *service.InsightService,
	ingestor *service.Ingestor,
	store interfaces.Store,
	cache *cachestore.Cache,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		pages:    pages,
		insights: insights,
		ingestor: ingestor,
		store:    store,
		cache:    cache,
		logger:   logger,
	}
}

// Page endpoints
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	page, err := h.pages.GetPage(r.Context(), pageKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "PAGE_NOT_FOUND", "page "+pageKey+" not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "PAGE_FETCH_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	filter := interfaces.PageFilter{
		Industry: r.URL.Query().Get("industry"),
		Name:     r.URL.Query().Get("name"),
	}
	if v, ok := intQuery(r, "follower_min"); ok {
		filter.FollowerMin = &v
	}
	if v, ok := intQuery(r, "follower_max"); ok {
		filter.FollowerMax = &v
	}

	list, err := h.pages.ListPages(r.Context(), filter, paginationFrom(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "PAGE_LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, PageListResponse{Items: list.Items, Meta: metaFrom(list.Meta)})
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	list, err := h.pages.ListPosts(r.Context(), pageKey, paginationFrom(r))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "PAGE_NOT_FOUND", "page "+pageKey+" not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "POST_LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, PostListResponse{Items: list.Items, Meta: metaFrom(list.Meta)})
}

func (h *Handler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	list, err := h.pages.ListFollowers(r.Context(), pageKey, paginationFrom(r))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "PAGE_NOT_FOUND", "page "+pageKey+" not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "FOLLOWER_LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, FollowerListResponse{Items: list.Items, Meta: metaFrom(list.Meta)})
}

// ListRuns serves the ingestion audit trail for a page key. No existence
// check on the page: runs that failed before anything persisted are the
// interesting ones, and they have no page row to check against.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	list, err := h.pages.ListRuns(r.Context(), pageKey, paginationFrom(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "RUN_LIST_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, IngestRunListResponse{Items: list.Items, Meta: metaFrom(list.Meta)})
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	summary, err := h.insights.Summarize(r.Context(), pageKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "PAGE_NOT_FOUND", "page "+pageKey+" not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "SUMMARY_ERROR", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// ScrapePage runs a full ingestion for the page and returns the run result.
// The failure kind picks the status: the page not existing at the source is
// the caller's mistake, the source misbehaving is an upstream problem, and
// everything else is ours.
func (h *Handler) ScrapePage(w http.ResponseWriter, r *http.Request) {
	pageKey := chi.URLParam(r, "pageKey")

	res := h.ingestor.Ingest(r.Context(), pageKey)
	if res.Success {
		h.writeJSON(w, http.StatusOK, res)
		return
	}

	status := http.StatusInternalServerError
	switch res.FailureKind {
	case scrape.NotFound:
		status = http.StatusNotFound
	case scrape.TransientError, scrape.MalformedResult:
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, res)
}

// Health endpoint: the database is load-bearing, the cache is not.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: map[string]string{
		"database": "ok",
		"cache":    "ok",
	}}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !h.cache.Enabled() {
		resp.Checks["cache"] = "degraded"
	} else if err := h.cache.Ping(ctx); err != nil {
		resp.Checks["cache"] = err.Error()
	}

	h.writeJSON(w, status, resp)
}

// Query helpers
func paginationFrom(r *http.Request) interfaces.Pagination {
	var pg interfaces.Pagination
	if v, ok := intQuery(r, "page"); ok {
		pg.Page = v
	}
	if v, ok := intQuery(r, "page_size"); ok {
		pg.PageSize = v
	}
	return pg.Normalize()
}

func intQuery(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}
