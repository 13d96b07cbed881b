// Package searcher answers ranked queries against the inverted index.
package searcher

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/gate"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
)

const (
	DefaultLimit     = 10
	DefaultMaxTokens = 300
)

// Result is a resolved search hit.
type Result struct {
	store.Document
	Score float64 `json:"score"`
}

type Service struct {
	docs         store.DocumentStore
	index        store.IndexStore
	family       *tokenizer.Family
	locker       store.Locker
	maxTokens    int
	defaultLimit int
	logger       *slog.Logger
}

type Option func(*Service)

// WithLocker overrides the index lock. By default the index store's own
// lock is used when it has one.
func WithLocker(l store.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithMaxTokens caps how many query tokens reach the aggregate query.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

func WithDefaultLimit(n int) Option {
	return func(s *Service) { s.defaultLimit = n }
}

// New builds a search service. family must be configured exactly like the
// one used to build the index.
func New(docs store.DocumentStore, index store.IndexStore, family *tokenizer.Family, opts ...Option) *Service {
	s := &Service{
		docs:         docs,
		index:        index,
		family:       family,
		maxTokens:    DefaultMaxTokens,
		defaultLimit: DefaultLimit,
		logger:       slog.Default().With("component", "searcher"),
	}
	if l, ok := index.(store.Locker); ok {
		s.locker = l
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = gate.New()
	}
	return s
}

// Search returns up to limit document ids ordered by relevance. A query
// without tokens yields an empty result, not an error. limit <= 0 selects the
// default limit.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]ranker.ScoredDoc, error) {
	release, err := s.locker.RLockIndex(ctx)
	if err != nil {
		return nil, apperrors.Store("locking index", err)
	}
	defer release()
	return s.search(ctx, query, limit)
}

// SearchDocuments is Search followed by Resolve under one hold of the index
// lock.
func (s *Service) SearchDocuments(ctx context.Context, query string, limit int) ([]Result, error) {
	release, err := s.locker.RLockIndex(ctx)
	if err != nil {
		return nil, apperrors.Store("locking index", err)
	}
	defer release()
	scored, err := s.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, scored)
}

// Resolve loads the documents of scored in order. Documents deleted since
// ranking are skipped.
func (s *Service) Resolve(ctx context.Context, scored []ranker.ScoredDoc) ([]Result, error) {
	release, err := s.locker.RLockIndex(ctx)
	if err != nil {
		return nil, apperrors.Store("locking index", err)
	}
	defer release()
	return s.resolve(ctx, scored)
}

func (s *Service) search(ctx context.Context, query string, limit int) ([]ranker.ScoredDoc, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	values := s.family.Values(query)
	if len(values) == 0 {
		return []ranker.ScoredDoc{}, nil
	}
	candidates := ranker.CandidateTokens(values, s.maxTokens)

	aggs, err := s.index.AggregatePostingsByDocument(ctx, candidates)
	if err != nil {
		return nil, apperrors.Store("aggregating postings", err)
	}
	if len(aggs) == 0 {
		return []ranker.ScoredDoc{}, nil
	}

	ids := make([]int64, len(aggs))
	for i, agg := range aggs {
		ids[i] = agg.DocumentID
	}
	docs, err := s.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, apperrors.Store("loading token counts", err)
	}
	tokenCounts := make(map[int64]int, len(docs))
	for _, doc := range docs {
		tokenCounts[doc.ID] = doc.TokenCount
	}

	ranked := ranker.Rank(aggs, tokenCounts, limit)
	s.logger.Debug("query ranked",
		"tokens", len(values),
		"candidate_tokens", len(candidates),
		"candidates", len(aggs),
		"returned", len(ranked),
	)
	return ranked, nil
}

func (s *Service) resolve(ctx context.Context, scored []ranker.ScoredDoc) ([]Result, error) {
	results := make([]Result, 0, len(scored))
	if len(scored) == 0 {
		return results, nil
	}
	ids := make([]int64, len(scored))
	for i, sd := range scored {
		ids[i] = sd.DocID
	}
	docs, err := s.docs.GetDocuments(ctx, ids)
	if err != nil {
		return nil, apperrors.Store("loading documents", err)
	}
	byID := make(map[int64]store.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	for _, sd := range scored {
		doc, ok := byID[sd.DocID]
		if !ok {
			continue
		}
		results = append(results, Result{Document: doc, Score: sd.Score})
	}
	return results, nil
}
