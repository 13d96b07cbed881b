package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/middleware"
)

type kvBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *kvBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (b *kvBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *kvBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = make(map[string][]byte)
	return n, nil
}

type env struct {
	store   *memory.Store
	indexer *indexer.Service
	handler *Handler
	mux     *http.ServeMux
}

func newEnv(t *testing.T, s *memory.Store, withCache bool) *env {
	t.Helper()
	family, err := tokenizer.NewFamily(tokenizer.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New(prometheus.NewRegistry())
	idx := indexer.New(s, s, family, 10, indexer.WithMetrics(m))
	svc := searcher.New(s, s, family)
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&kvBackend{data: make(map[string][]byte)}, time.Minute, m)
	}
	h := New(svc, idx, s, qc, m, config.Default().Search)
	mux := http.NewServeMux()
	h.Routes(mux)
	return &env{store: s, indexer: idx, handler: h, mux: mux}
}

func (e *env) add(t *testing.T, body, label string) store.Document {
	t.Helper()
	doc, err := e.store.CreateDocument(context.Background(), body, label)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.indexer.IndexDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func (e *env) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	e := newEnv(t, memory.New(), true)
	a := e.add(t, "stock markets rally on tech earnings", "BUSINESS")
	e.add(t, "local team wins championship", "SPORTS")

	rec := e.do(http.MethodGet, "/api/v1/search?q=stock+market")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].ID != a.ID || resp.Results[0].Label != "BUSINESS" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Limit != 10 || resp.CacheHit {
		t.Errorf("expected default limit and a miss, got limit=%d hit=%v", resp.Limit, resp.CacheHit)
	}

	rec = e.do(http.MethodGet, "/api/v1/search?q=stock+market")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.CacheHit {
		t.Error("second identical query should hit the cache")
	}
}

func TestSearchValidation(t *testing.T) {
	e := newEnv(t, memory.New(), false)
	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/search", http.StatusBadRequest},
		{"/api/v1/search?q=ab", http.StatusBadRequest},
		{"/api/v1/search?q=%20%20ab%20", http.StatusBadRequest},
		{"/api/v1/search?q=abc&limit=0", http.StatusBadRequest},
		{"/api/v1/search?q=abc&limit=x", http.StatusBadRequest},
		{"/api/v1/search?q=abc", http.StatusOK},
		{"/api/v1/search?q=!!!", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := e.do(http.MethodGet, tt.target); rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.want, rec.Code)
		}
	}
}

func TestSearchLimitCapped(t *testing.T) {
	e := newEnv(t, memory.New(), false)
	rec := e.do(http.MethodGet, "/api/v1/search?q=market&limit=100000")
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Limit != config.Default().Search.MaxResults {
		t.Errorf("expected limit capped at %d, got %d", config.Default().Search.MaxResults, resp.Limit)
	}
	if resp.Results == nil {
		t.Error("results should encode as an empty list")
	}
}

type downStore struct {
	*memory.Store
}

func (downStore) AggregatePostingsByDocument(ctx context.Context, names []string) ([]store.DocumentAggregate, error) {
	return nil, errors.New("connection reset")
}

func TestSearchStoreFailureIs503(t *testing.T) {
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	mem := memory.New()
	svc := searcher.New(mem, downStore{mem}, family)
	h := New(svc, nil, mem, nil, nil, config.Default().Search)
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=stock", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func reindexStatus(t *testing.T, rec *httptest.ResponseRecorder) ReindexStatus {
	t.Helper()
	var st ReindexStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding reindex status %q: %v", rec.Body, err)
	}
	return st
}

func TestReindexInvalidatesCache(t *testing.T) {
	e := newEnv(t, memory.New(), true)
	e.add(t, "central bank raises rates", "BUSINESS")
	e.do(http.MethodGet, "/api/v1/search?q=central+bank")

	if st := reindexStatus(t, e.do(http.MethodGet, "/api/v1/reindex")); st.Status != ReindexIdle {
		t.Errorf("expected idle before any rebuild, got %q", st.Status)
	}
	rec := e.do(http.MethodPost, "/api/v1/reindex")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("reindex: %d %s", rec.Code, rec.Body)
	}
	e.handler.Wait()

	st := reindexStatus(t, e.do(http.MethodGet, "/api/v1/reindex"))
	if st.Status != ReindexSucceeded || st.Documents != 1 || st.Indexed != 1 || st.FinishedAt == nil {
		t.Errorf("unexpected reindex status %+v", st)
	}

	var resp SearchResponse
	json.Unmarshal(e.do(http.MethodGet, "/api/v1/search?q=central+bank").Body.Bytes(), &resp)
	if resp.CacheHit {
		t.Error("cache should be empty after reindex")
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 hit after rebuild, got %d", resp.Total)
	}
}

func TestReindexUnavailable(t *testing.T) {
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	mem := memory.New()
	h := New(searcher.New(mem, mem, family), nil, mem, nil, nil, config.Default().Search)
	rec := httptest.NewRecorder()
	h.StartReindex(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reindex", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// slowIndexStore makes every dictionary lookup take delay, giving up early
// when the context ends.
type slowIndexStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowIndexStore) GetOrCreateTokens(ctx context.Context, names []string) (map[string]int64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.Store.GetOrCreateTokens(ctx, names)
}

func TestReindexOutlivesRequestTimeout(t *testing.T) {
	mem := memory.New()
	slow := &slowIndexStore{Store: mem, delay: 5 * time.Millisecond}
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	idx := indexer.New(mem, slow, family, 10)
	svc := searcher.New(mem, mem, family)
	h := New(svc, idx, mem, nil, nil, config.Default().Search)

	mux := http.NewServeMux()
	h.Routes(mux)
	var chain http.Handler = mux
	chain = middleware.Timeout(50 * time.Millisecond)(chain)
	chain = middleware.RequestID(chain)

	const docs = 40
	ctx := context.Background()
	for i := 0; i < docs; i++ {
		doc, err := mem.CreateDocument(ctx, "central bank raises rates", "BUSINESS")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := idx.IndexDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reindex", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reindex", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second reindex while running: expected 409, got %d", rec.Code)
	}

	// The rebuild takes about docs*delay, well past the request timeout.
	h.Wait()
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reindex", nil))
	if st := reindexStatus(t, rec); st.Status != ReindexSucceeded || st.Documents != docs {
		t.Fatalf("unexpected reindex status %+v", st)
	}

	hits, err := svc.Search(ctx, "central bank", docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != docs {
		t.Errorf("expected every document searchable after rebuild, got %d/%d", len(hits), docs)
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := newEnv(t, memory.New(), false)
	e.add(t, "stock markets rally", "BUSINESS")
	e.add(t, "bank holds rates", "BUSINESS")
	e.add(t, "team wins", "SPORTS")

	rec := e.do(http.MethodGet, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		TotalDocuments int64              `json:"total_documents"`
		Labels         []store.LabelCount `json:"labels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.TotalDocuments != 3 || len(body.Labels) != 2 {
		t.Fatalf("unexpected stats %+v", body)
	}
	if body.Labels[0].Label != "BUSINESS" || body.Labels[0].Count != 2 {
		t.Errorf("unexpected first label %+v", body.Labels[0])
	}
}

func TestCacheEndpoints(t *testing.T) {
	disabled := newEnv(t, memory.New(), false)
	rec := disabled.do(http.MethodGet, "/api/v1/cache/stats")
	if !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("expected disabled status, got %s", rec.Body)
	}
	if rec := disabled.do(http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without cache, got %d", rec.Code)
	}

	enabled := newEnv(t, memory.New(), true)
	enabled.do(http.MethodGet, "/api/v1/search?q=rates")
	enabled.do(http.MethodGet, "/api/v1/search?q=rates")
	rec = enabled.do(http.MethodGet, "/api/v1/cache/stats")
	var stats map[string]any
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats["hits"].(float64) != 1 || stats["misses"].(float64) != 1 {
		t.Errorf("unexpected cache stats %v", stats)
	}
	if rec := enabled.do(http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
