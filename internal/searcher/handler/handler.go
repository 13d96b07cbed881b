// Package handler exposes search, reindex and stats over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/tracing"
)

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]ranker.ScoredDoc, error)
	Resolve(ctx context.Context, scored []ranker.ScoredDoc) ([]searcher.Result, error)
}

type Reindexer interface {
	ReindexAll(ctx context.Context, progress func(indexed int)) (indexer.ReindexResult, error)
}

type StatsSource interface {
	CountDocuments(ctx context.Context) (int64, error)
	LabelCounts(ctx context.Context) ([]store.LabelCount, error)
}

type Handler struct {
	searcher  Searcher
	reindexer Reindexer
	stats     StatsSource
	cache     *cache.QueryCache
	metrics   *metrics.Metrics
	cfg       config.SearchConfig
	reindex   reindexJob
	logger    *slog.Logger
}

// New wires the handler. reindexer, queryCache and m may be nil.
func New(s Searcher, reindexer Reindexer, stats StatsSource, queryCache *cache.QueryCache, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher:  s,
		reindexer: reindexer,
		stats:     stats,
		cache:     queryCache,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/reindex", h.StartReindex)
	mux.HandleFunc("GET /api/v1/reindex", h.ReindexProgress)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type SearchResponse struct {
	Query     string            `json:"query"`
	Limit     int               `json:"limit"`
	Total     int               `json:"total"`
	CacheHit  bool              `json:"cache_hit"`
	LatencyMs int64             `json:"latency_ms"`
	Results   []searcher.Result `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search")
	defer span.Finish(ctx)
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(query) < h.cfg.MinQueryLength {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("query parameter 'q' must be at least %d characters", h.cfg.MinQueryLength))
		return
	}

	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.cfg.MaxResults)
	}
	span.Set("limit", limit)

	var (
		scored   []ranker.ScoredDoc
		cacheHit bool
		err      error
	)
	rankCtx, rankSpan := tracing.Start(ctx, "rank")
	if h.cache != nil {
		scored, cacheHit, err = h.cache.GetOrCompute(rankCtx, query, limit, func() ([]ranker.ScoredDoc, error) {
			return h.searcher.Search(rankCtx, query, limit)
		})
	} else {
		scored, err = h.searcher.Search(rankCtx, query, limit)
	}
	rankSpan.Set("cache_hit", cacheHit)
	rankSpan.End()
	if err != nil {
		h.countQuery("error")
		log.Error("search failed", "query", query, "error", err)
		h.writeFailure(w, err, "search failed")
		return
	}

	_, resolveSpan := tracing.Start(ctx, "resolve")
	results, err := h.searcher.Resolve(ctx, scored)
	resolveSpan.End()
	if err != nil {
		h.countQuery("error")
		log.Error("resolving documents failed", "query", query, "error", err)
		h.writeFailure(w, err, "search failed")
		return
	}

	latency := time.Since(start)
	h.observe(latency, cacheHit, len(results))
	log.Info("search completed",
		"query", query,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:     query,
		Limit:     limit,
		Total:     len(results),
		CacheHit:  cacheHit,
		LatencyMs: latency.Milliseconds(),
		Results:   results,
	})
}

// Stats reports the document total and per-label counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.stats.CountDocuments(ctx)
	if err != nil {
		h.writeFailure(w, apperrors.Store("counting documents", err), "stats unavailable")
		return
	}
	labels, err := h.stats.LabelCounts(ctx)
	if err != nil {
		h.writeFailure(w, apperrors.Store("counting labels", err), "stats unavailable")
		return
	}
	if labels == nil {
		labels = []store.LabelCount{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_documents": total,
		"labels":          labels,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) countQuery(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) observe(latency time.Duration, cacheHit bool, returned int) {
	if h.metrics == nil {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	h.metrics.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(returned))
	if returned == 0 {
		h.countQuery("zero_result")
	} else {
		h.countQuery("hit")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err to a status code and writes message.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, message string) {
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}
