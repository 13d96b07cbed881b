package searcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
)

type fixture struct {
	store   *memory.Store
	indexer *indexer.Service
	search  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	family, err := tokenizer.NewFamily(tokenizer.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	s := memory.New()
	return &fixture{
		store:   s,
		indexer: indexer.New(s, s, family, 10),
		search:  New(s, s, family),
	}
}

func (f *fixture) add(t *testing.T, body, label string) store.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.store.CreateDocument(ctx, body, label)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.indexer.IndexDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func ids(scored []Result) []int64 {
	out := make([]int64, len(scored))
	for i, r := range scored {
		out[i] = r.ID
	}
	return out
}

func TestRankingScenario(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "stock markets rally on tech earnings", "BUSINESS")
	f.add(t, "local team wins championship", "SPORTS")

	results, err := f.search.SearchDocuments(context.Background(), "stock market", 10)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(results) != 1 || results[0].ID != a.ID {
		t.Fatalf("expected only document %d, got %v", a.ID, ids(results))
	}
	if results[0].Label != "BUSINESS" || results[0].Score <= 0 {
		t.Errorf("unexpected hit %+v", results[0])
	}
}

func TestEmptyQuery(t *testing.T) {
	f := newFixture(t)
	f.add(t, "stock markets rally", "BUSINESS")
	for _, q := range []string{"", "   ", "!?", "a"} {
		got, err := f.search.Search(context.Background(), q, 10)
		if err != nil {
			t.Errorf("query %q: %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("query %q: expected empty non-nil result, got %v", q, got)
		}
	}
}

func TestLengthNormalization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short := f.add(t, "earnings", "BUSINESS")
	long := f.add(t, "earnings", "BUSINESS")
	// Same postings, but the long document claims ten times the length.
	if err := f.store.SaveDocumentTokenCount(ctx, long.ID, 100); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SaveDocumentTokenCount(ctx, short.ID, 10); err != nil {
		t.Fatal(err)
	}

	got, err := f.search.Search(ctx, "earnings", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].DocID != short.ID {
		t.Fatalf("expected short document first, got %+v", got)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("short document should score higher: %+v", got)
	}
}

func TestLimitAndDefault(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.add(t, fmt.Sprintf("market report number %d", i), "BUSINESS")
	}
	ctx := context.Background()
	got, err := f.search.Search(ctx, "market", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 results, got %d", len(got))
	}
	got, err = f.search.Search(ctx, "market", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Fatalf("results not ordered by score: %+v", got)
		}
		if got[i-1].Score == got[i].Score && got[i-1].DocID > got[i].DocID {
			t.Fatalf("ties not ordered by id: %+v", got)
		}
	}
}

func TestRemovedDocumentDisappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.add(t, "volcano eruption grounds flights", "WORLD")
	f.add(t, "stock markets rally", "BUSINESS")

	if err := f.indexer.RemoveDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.search.Search(ctx, "volcano eruption", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, sd := range got {
		if sd.DocID == doc.ID {
			t.Fatalf("removed document %d still ranked", doc.ID)
		}
	}
	if _, err := f.store.GetDocument(ctx, doc.ID); err != nil {
		t.Errorf("document store should be untouched: %v", err)
	}
}

func TestDeletedDocumentDroppedOnResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, "central bank raises rates", "BUSINESS")
	b := f.add(t, "central bank holds rates", "BUSINESS")

	scored, err := f.search.Search(ctx, "central bank rates", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 hits, got %+v", scored)
	}
	if err := f.store.DeleteDocument(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	results, err := f.search.Resolve(ctx, scored)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(results) != 1 || results[0].ID != b.ID {
		t.Errorf("expected only document %d, got %v", b.ID, ids(results))
	}
}

type brokenIndex struct {
	*memory.Store
}

var errDown = errors.New("database is down")

func (brokenIndex) AggregatePostingsByDocument(ctx context.Context, names []string) ([]store.DocumentAggregate, error) {
	return nil, errDown
}

func TestStoreFailure(t *testing.T) {
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	mem := memory.New()
	svc := New(mem, brokenIndex{mem}, family)
	_, err := svc.Search(context.Background(), "anything", 10)
	if !errors.Is(err, apperrors.ErrStoreUnavailable) || !errors.Is(err, errDown) {
		t.Errorf("expected wrapped store failure, got %v", err)
	}
}

func TestSearchWaitsForReindex(t *testing.T) {
	f := newFixture(t)
	f.add(t, "stock markets rally", "BUSINESS")
	// A second service over the same store shares its index lock.
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	svc := New(f.store, f.store, family)

	release, err := f.store.LockIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan []int64)
	go func() {
		got, _ := svc.SearchDocuments(context.Background(), "stock", 10)
		done <- ids(got)
	}()
	select {
	case <-done:
		t.Fatal("search ran during an exclusive rebuild")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	if got := <-done; len(got) != 1 {
		t.Errorf("expected one hit after rebuild, got %v", got)
	}
}

func BenchmarkSearch(b *testing.B) {
	family, _ := tokenizer.NewFamily(tokenizer.DefaultConfig())
	s := memory.New()
	idx := indexer.New(s, s, family, 10)
	svc := New(s, s, family)
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		doc, _ := s.CreateDocument(ctx, fmt.Sprintf("market report %d on technology earnings and central bank policy", i), "BUSINESS")
		if _, err := idx.IndexDocument(ctx, doc); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Search(ctx, "technology earnings", 10); err != nil {
			b.Fatal(err)
		}
	}
}
