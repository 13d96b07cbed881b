package handler

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
)

const (
	ReindexIdle      = "idle"
	ReindexRunning   = "running"
	ReindexSucceeded = "succeeded"
	ReindexFailed    = "failed"
)

// ReindexStatus describes the current or most recent rebuild.
type ReindexStatus struct {
	Status     string     `json:"status"`
	Indexed    int64      `json:"indexed"`
	Documents  int        `json:"documents,omitempty"`
	Postings   int        `json:"postings,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// reindexJob runs at most one rebuild at a time, detached from the request
// that started it: a rebuild clears the index first, so stopping it half way
// would leave most documents unsearchable.
type reindexJob struct {
	mu      sync.Mutex
	status  ReindexStatus
	indexed atomic.Int64
	wg      sync.WaitGroup
}

func (j *reindexJob) snapshot() ReindexStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.status
	if s.Status == "" {
		s.Status = ReindexIdle
	}
	s.Indexed = j.indexed.Load()
	return s
}

// StartReindex begins a rebuild in the background. It answers 202 with the
// job status, or 409 when a rebuild is already running.
func (h *Handler) StartReindex(w http.ResponseWriter, r *http.Request) {
	if h.reindexer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reindexing is not available on this instance")
		return
	}
	job := &h.reindex
	job.mu.Lock()
	if job.status.Status == ReindexRunning {
		job.mu.Unlock()
		h.writeJSON(w, http.StatusConflict, job.snapshot())
		return
	}
	started := time.Now().UTC()
	job.status = ReindexStatus{Status: ReindexRunning, StartedAt: &started}
	job.indexed.Store(0)
	job.wg.Add(1)
	job.mu.Unlock()

	// Request-scoped values such as the request id stay for logging.
	ctx := context.WithoutCancel(r.Context())
	go h.runReindex(ctx)

	h.writeJSON(w, http.StatusAccepted, job.snapshot())
}

// ReindexProgress reports the running or most recent rebuild.
func (h *Handler) ReindexProgress(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reindex.snapshot())
}

// Wait blocks until a running rebuild has finished.
func (h *Handler) Wait() {
	h.reindex.wg.Wait()
}

func (h *Handler) runReindex(ctx context.Context) {
	job := &h.reindex
	defer job.wg.Done()
	log := logger.FromContext(ctx)

	result, err := h.reindexer.ReindexAll(ctx, func(indexed int) {
		job.indexed.Store(int64(indexed))
	})
	if err == nil && h.cache != nil {
		if cerr := h.cache.Invalidate(ctx); cerr != nil {
			log.Warn("cache invalidation after reindex failed", "error", cerr)
		}
	}

	finished := time.Now().UTC()
	job.mu.Lock()
	defer job.mu.Unlock()
	job.status.FinishedAt = &finished
	job.status.Documents = result.Documents
	job.status.Postings = result.Postings
	job.status.DurationMS = result.Duration.Milliseconds()
	if err != nil {
		log.Error("reindex failed", "documents", result.Documents, "error", err)
		job.status.Status = ReindexFailed
		job.status.Error = err.Error()
		return
	}
	job.status.Status = ReindexSucceeded
}
