package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/logger"
)

// Ingester is implemented by *publisher.Publisher.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	Update(ctx context.Context, id int64, req *ingestion.UpdateRequest) (*ingestion.IngestResponse, error)
	Delete(ctx context.Context, id int64) error
}

// Reader serves the read side of the documents API. Any store.Store
// satisfies it.
type Reader interface {
	GetDocument(ctx context.Context, id int64) (store.Document, error)
	PageDocuments(ctx context.Context, opts store.ListOptions) ([]store.Document, error)
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Handler struct {
	ingester Ingester
	reader   Reader
	limits   validator.Limits
	logger   *slog.Logger
}

func New(ingester Ingester, reader Reader, limits validator.Limits) *Handler {
	return &Handler{
		ingester: ingester,
		reader:   reader,
		limits:   limits,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /api/v1/documents", h.List)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	// Room for JSON escaping on top of the body limit.
	r.Body = http.MaxBytesReader(w, r.Body, int64(2*h.limits.MaxBodyBytes+1024))
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req, h.limits); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", statusCode)
		body := map[string]any{"error": "ingestion failed"}
		if resp != nil {
			body["document_id"] = resp.DocumentID
		}
		h.writeJSON(w, statusCode, body)
		return
	}
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
		"token_count", resp.TokenCount,
	)
	status := http.StatusCreated
	if resp.Status == ingestion.StatusQueued {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, resp)
}

// List pages through stored documents in id order. Query parameters: skip,
// limit (1..1000, default 100) and label.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Label: validator.NormalizeLabel(q.Get("label")),
		Limit: defaultPageSize,
	}
	if s := q.Get("skip"); s != "" {
		skip, err := strconv.Atoi(s)
		if err != nil || skip < 0 {
			h.writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		opts.Offset = skip
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxPageSize {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		opts.Limit = limit
	}

	docs, err := h.reader.PageDocuments(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, r, "listing documents failed", 0, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"skip":      opts.Offset,
		"limit":     opts.Limit,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.reader.GetDocument(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, "reading document failed", id, apperrors.Store("reading document", err))
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Update replaces the body, the label or both. A changed body is re-indexed
// the same way a new document is.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, int64(2*h.limits.MaxBodyBytes+1024))
	var req ingestion.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateUpdateRequest(&req, h.limits); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.ingester.Update(ctx, id, &req)
	if err != nil {
		h.writeStoreError(w, r, "update failed", id, err)
		return
	}
	logger.FromContext(ctx).Info("document updated",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
		"token_count", resp.TokenCount,
	)
	status := http.StatusOK
	if resp.Status == ingestion.StatusQueued {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.ingester.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, "delete failed", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// writeStoreError maps err to a status code. Only server-side failures are
// logged.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, msg string, id int64, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(msg, "doc_id", id, "error", err)
	}
	h.writeError(w, statusCode, http.StatusText(statusCode))
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
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
