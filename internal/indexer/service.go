// Package indexer turns stored documents into postings. Every (re)index of a
// document deletes its postings and writes them again in full; there is no
// incremental diff.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/gate"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
)

// Publisher receives index-complete notifications. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Service struct {
	docs        store.DocumentStore
	index       store.IndexStore
	family      *tokenizer.Family
	fieldWeight int
	locker      store.Locker
	metrics     *metrics.Metrics
	publisher   Publisher
	logger      *slog.Logger
}

type Option func(*Service)

// WithLocker overrides the index lock. By default the index store's own
// lock is used when it has one, so services in different processes sharing
// a database exclude each other.
func WithLocker(l store.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(docs store.DocumentStore, index store.IndexStore, family *tokenizer.Family, fieldWeight int, opts ...Option) *Service {
	s := &Service{
		docs:        docs,
		index:       index,
		family:      family,
		fieldWeight: fieldWeight,
		logger:      slog.Default().With("component", "indexer"),
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

// PostingWeight is fieldWeight × tokenizerWeight × ⌈√len(value)⌉.
func PostingWeight(fieldWeight, tokenizerWeight int, value string) int {
	return fieldWeight * tokenizerWeight * int(math.Ceil(math.Sqrt(float64(len(value)))))
}

// IndexDocument replaces the postings of doc with those derived from
// doc.Body and stores the new token count, which it also returns.
func (s *Service) IndexDocument(ctx context.Context, doc store.Document) (int, error) {
	release, err := s.lockDocument(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	defer release()
	return s.indexAndNotify(ctx, doc)
}

// IndexByID loads the current text of document id and indexes it. The load
// happens under the document lock so the freshest text wins.
func (s *Service) IndexByID(ctx context.Context, id int64) (int, error) {
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return 0, err
	}
	defer release()
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return 0, apperrors.Store(fmt.Sprintf("loading document %d", id), err)
	}
	return s.indexAndNotify(ctx, doc)
}

func (s *Service) indexAndNotify(ctx context.Context, doc store.Document) (int, error) {
	start := time.Now()
	n, err := s.write(ctx, doc)
	if err != nil {
		s.fail("index")
		s.logger.Error("indexing failed", "doc_id", doc.ID, "error", err)
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.IndexLatency.WithLabelValues("index").Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("document indexed",
		"doc_id", doc.ID,
		"token_count", n,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	s.notify(ctx, events.IndexComplete{DocumentID: doc.ID, Op: events.OpIndexed, TokenCount: n, IndexedAt: time.Now().UTC()})
	return n, nil
}

// write performs the delete, tokenize, resolve, insert and count steps. The
// caller holds the document or index lock.
func (s *Service) write(ctx context.Context, doc store.Document) (int, error) {
	if err := s.index.DeletePostingsByDocument(ctx, doc.ID); err != nil {
		return 0, apperrors.Store(fmt.Sprintf("deleting postings of document %d", doc.ID), err)
	}

	tokens := s.family.Tokenize(doc.Body)
	postings := make([]store.Posting, 0, len(tokens))
	if len(tokens) > 0 {
		names := make([]string, len(tokens))
		for i, tok := range tokens {
			names[i] = tok.Value
		}
		ids, err := s.index.GetOrCreateTokens(ctx, names)
		if err != nil {
			return 0, apperrors.Store("resolving tokens", err)
		}
		for _, tok := range tokens {
			id, ok := ids[tok.Value]
			if !ok {
				return 0, fmt.Errorf("%w: token %q was not resolved", apperrors.ErrInternal, tok.Value)
			}
			postings = append(postings, store.Posting{
				TokenID:      id,
				DocumentID:   doc.ID,
				DocumentType: store.DocumentType,
				FieldID:      store.FieldBody,
				Weight:       PostingWeight(s.fieldWeight, tok.Weight, tok.Value),
			})
		}
		if err := s.index.BulkInsertPostings(ctx, postings); err != nil {
			return 0, apperrors.Store(fmt.Sprintf("inserting %d postings of document %d", len(postings), doc.ID), err)
		}
	}

	if err := s.docs.SaveDocumentTokenCount(ctx, doc.ID, len(postings)); err != nil {
		return 0, apperrors.Store(fmt.Sprintf("saving token count of document %d", doc.ID), err)
	}
	if s.metrics != nil {
		s.metrics.DocsIndexedTotal.Inc()
		s.metrics.PostingsWrittenTotal.Add(float64(len(postings)))
	}
	return len(postings), nil
}

// RemoveDocument deletes the postings of id. The document record and the
// token dictionary are left untouched.
func (s *Service) RemoveDocument(ctx context.Context, id int64) error {
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	if err := s.index.DeletePostingsByDocument(ctx, id); err != nil {
		err = apperrors.Store(fmt.Sprintf("deleting postings of document %d", id), err)
		s.fail("remove")
		return err
	}
	if s.metrics != nil {
		s.metrics.DocsRemovedTotal.Inc()
		s.metrics.IndexLatency.WithLabelValues("remove").Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("document removed from index", "doc_id", id)
	s.notify(ctx, events.IndexComplete{DocumentID: id, Op: events.OpRemoved, IndexedAt: time.Now().UTC()})
	return nil
}

// ReindexResult summarizes a full rebuild.
type ReindexResult struct {
	Documents int           `json:"documents"`
	Postings  int           `json:"postings"`
	Duration  time.Duration `json:"duration"`
}

// ReindexAll clears the dictionary and every posting, then indexes each
// stored document in store order. It excludes all other index and search
// work sharing the store lock for its whole duration. progress, when non-nil,
// is called after each document with the running count.
func (s *Service) ReindexAll(ctx context.Context, progress func(indexed int)) (ReindexResult, error) {
	release, err := s.locker.LockIndex(ctx)
	if err != nil {
		s.fail("reindex")
		return ReindexResult{}, apperrors.Store("locking index for rebuild", err)
	}
	defer release()

	start := time.Now()
	s.logger.Info("full reindex started")
	result, err := s.rebuild(ctx, progress)
	result.Duration = time.Since(start)
	if err != nil {
		s.fail("reindex")
		s.logger.Error("full reindex failed",
			"documents", result.Documents,
			"error", err,
		)
		return result, err
	}
	if s.metrics != nil {
		s.metrics.ReindexDuration.Observe(result.Duration.Seconds())
	}
	s.logger.Info("full reindex finished",
		"documents", result.Documents,
		"postings", result.Postings,
		"latency_ms", result.Duration.Milliseconds(),
	)
	s.notify(ctx, events.IndexComplete{Op: events.OpReindex, TokenCount: result.Postings, IndexedAt: time.Now().UTC()})
	return result, nil
}

func (s *Service) rebuild(ctx context.Context, progress func(int)) (ReindexResult, error) {
	var result ReindexResult
	if err := s.index.DeleteAllTokensAndPostings(ctx); err != nil {
		return result, apperrors.Store("clearing index", err)
	}
	for doc, err := range s.docs.ListDocuments(ctx) {
		if err != nil {
			return result, apperrors.Store("listing documents", err)
		}
		n, err := s.write(ctx, doc)
		if err != nil {
			return result, err
		}
		result.Documents++
		result.Postings += n
		if progress != nil {
			progress(result.Documents)
		}
	}
	return result, nil
}

func (s *Service) lockDocument(ctx context.Context, id int64) (func(), error) {
	release, err := s.locker.LockDocument(ctx, id)
	if err != nil {
		return nil, apperrors.Store(fmt.Sprintf("locking document %d", id), err)
	}
	return release, nil
}

func (s *Service) fail(op string) {
	if s.metrics != nil {
		s.metrics.IndexErrorsTotal.WithLabelValues(op).Inc()
	}
}

// notify publishes best effort: the index mutation has already committed,
// so a publish failure is logged and not returned.
func (s *Service) notify(ctx context.Context, event events.IndexComplete) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, kafka.Event{Key: event.Key(), Value: event}); err != nil {
		s.logger.Warn("index-complete notification failed",
			"doc_id", event.DocumentID,
			"op", event.Op,
			"error", err,
		)
	}
}
