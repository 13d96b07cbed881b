package ranker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
)

func TestScoreFormula(t *testing.T) {
	agg := store.DocumentAggregate{DocumentID: 1, SumWeight: 900, DistinctTokens: 2, AvgWeight: 450}
	// 900 × 3 × 451 / 10
	if got, want := Score(agg, 10), 121770.0; got != want {
		t.Errorf("Score = %v, want %v", got, want)
	}
	if Score(agg, 0) != Score(agg, 1) {
		t.Error("zero token count must be treated as 1")
	}
}

func TestRankPrefersShorterDocuments(t *testing.T) {
	aggs := []store.DocumentAggregate{
		{DocumentID: 1, SumWeight: 400, DistinctTokens: 1, AvgWeight: 400},
		{DocumentID: 2, SumWeight: 400, DistinctTokens: 1, AvgWeight: 400},
	}
	ranked := Rank(aggs, map[int64]int{1: 100, 2: 10}, 10)
	if len(ranked) != 2 || ranked[0].DocID != 2 {
		t.Fatalf("expected document 2 first, got %+v", ranked)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("shorter document should score strictly higher: %+v", ranked)
	}
}

func TestRankTiesAndTruncation(t *testing.T) {
	aggs := []store.DocumentAggregate{
		{DocumentID: 9, SumWeight: 10, DistinctTokens: 1, AvgWeight: 10},
		{DocumentID: 3, SumWeight: 10, DistinctTokens: 1, AvgWeight: 10},
		{DocumentID: 5, SumWeight: 50, DistinctTokens: 2, AvgWeight: 25},
		{DocumentID: 1, SumWeight: 10, DistinctTokens: 1, AvgWeight: 10},
	}
	ranked := Rank(aggs, nil, 3)
	want := []int64{5, 1, 3}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(ranked))
	}
	for i, id := range want {
		if ranked[i].DocID != id {
			t.Errorf("position %d: expected %d, got %d", i, id, ranked[i].DocID)
		}
	}
	if all := Rank(aggs, nil, 0); len(all) != 4 {
		t.Errorf("limit 0 should keep everything, got %d", len(all))
	}
}

func TestCandidateTokens(t *testing.T) {
	got := CandidateTokens([]string{"ab", "stock", "sto", "stoc", "ab", "abc"}, 3)
	want := []string{"stock", "stoc", "abc"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("CandidateTokens = %v, want %v", got, want)
	}

	many := make([]string, 500)
	for i := range many {
		many[i] = fmt.Sprintf("t%04d", i)
	}
	if n := len(CandidateTokens(many, 300)); n != 300 {
		t.Errorf("expected cap of 300, got %d", n)
	}
	if n := len(CandidateTokens(many, 0)); n != 500 {
		t.Errorf("expected no cap, got %d", n)
	}
}

func BenchmarkRank(b *testing.B) {
	aggs := make([]store.DocumentAggregate, 5000)
	counts := make(map[int64]int, len(aggs))
	for i := range aggs {
		id := int64(i + 1)
		aggs[i] = store.DocumentAggregate{DocumentID: id, SumWeight: int64(i%97 + 1), DistinctTokens: int64(i%7 + 1), AvgWeight: float64(i%13 + 1)}
		counts[id] = i%50 + 10
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Rank(aggs, counts, 10)
	}
}
