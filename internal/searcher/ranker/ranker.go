// Package ranker scores per-document posting aggregates and orders them.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
)

type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// Score computes sum × (1 + distinct) × (1 + avg) / max(tokenCount, 1).
func Score(agg store.DocumentAggregate, tokenCount int) float64 {
	denominator := tokenCount
	if denominator < 1 {
		denominator = 1
	}
	return float64(agg.SumWeight) *
		(1 + float64(agg.DistinctTokens)) *
		(1 + agg.AvgWeight) /
		float64(denominator)
}

// Rank scores every aggregate against the token count of its document,
// orders by score descending with ties broken by ascending id, and keeps at
// most limit entries (all of them when limit <= 0). A document absent from
// tokenCounts is normalized by 1.
func Rank(aggs []store.DocumentAggregate, tokenCounts map[int64]int, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(aggs))
	for _, agg := range aggs {
		result = append(result, ScoredDoc{
			DocID: agg.DocumentID,
			Score: Score(agg, tokenCounts[agg.DocumentID]),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CandidateTokens returns the distinct values ordered longest first (ties
// lexicographic) and capped at max. A non-positive max disables the cap.
func CandidateTokens(values []string, max int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
