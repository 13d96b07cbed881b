// Package memory is an in-process Store. It keeps documents, the token
// dictionary and the postings in maps behind a single RWMutex; index locks
// come from a gate shared by every service using the store.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/gate"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
)

// pageSize bounds how many documents ListDocuments copies per lock hold.
const pageSize = 256

type Store struct {
	*gate.Gate

	mu          sync.RWMutex
	docs        map[int64]*store.Document
	nextDocID   int64
	tokens      map[string]int64
	tokenNames  map[int64]string
	nextTokenID int64
	postings    map[int64][]store.Posting
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		Gate:       gate.New(),
		docs:       make(map[int64]*store.Document),
		tokens:     make(map[string]int64),
		tokenNames: make(map[int64]string),
		postings:   make(map[int64][]store.Posting),
		now:        time.Now,
	}
}

func (s *Store) CreateDocument(ctx context.Context, body, label string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDocID++
	now := s.now().UTC()
	doc := &store.Document{
		ID:        s.nextDocID,
		Body:      body,
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.docs[doc.ID] = doc
	return *doc, nil
}

// PutDocument inserts or replaces a document with a caller-chosen id.
func (s *Store) PutDocument(doc store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID > s.nextDocID {
		s.nextDocID = doc.ID
	}
	d := doc
	s.docs[doc.ID] = &d
}

func (s *Store) UpdateDocument(ctx context.Context, id int64, patch store.DocumentPatch) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	if patch.Body != nil {
		doc.Body = *patch.Body
	}
	if patch.Label != nil {
		doc.Label = *patch.Label
	}
	doc.UpdatedAt = s.now().UTC()
	return *doc, nil
}

func (s *Store) PageDocuments(ctx context.Context, opts store.ListOptions) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.docs))
	for id, doc := range s.docs {
		if opts.Label == "" || doc.Label == opts.Label {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if opts.Offset >= len(ids) {
		return []store.Document{}, nil
	}
	ids = ids[opts.Offset:]
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	page := make([]store.Document, len(ids))
	for i, id := range ids {
		page[i] = *s.docs[id]
	}
	return page, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	delete(s.docs, id)
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return *doc, nil
}

func (s *Store) GetDocuments(ctx context.Context, ids []int64) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (s *Store) ListDocuments(ctx context.Context) iter.Seq2[store.Document, error] {
	return func(yield func(store.Document, error) bool) {
		var after int64
		for {
			if err := ctx.Err(); err != nil {
				yield(store.Document{}, err)
				return
			}
			page := s.pageAfter(after)
			for _, doc := range page {
				if !yield(doc, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *Store) pageAfter(after int64) []store.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.docs))
	for id := range s.docs {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > pageSize {
		ids = ids[:pageSize]
	}
	page := make([]store.Document, len(ids))
	for i, id := range ids {
		page[i] = *s.docs[id]
	}
	return page
}

func (s *Store) SaveDocumentTokenCount(ctx context.Context, id int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	doc.TokenCount = count
	doc.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

func (s *Store) LabelCounts(ctx context.Context) ([]store.LabelCount, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, doc := range s.docs {
		counts[doc.Label]++
	}
	s.mu.RUnlock()
	result := make([]store.LabelCount, 0, len(counts))
	for label, n := range counts {
		result = append(result, store.LabelCount{Label: label, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Label < result[j].Label })
	return result, nil
}

func (s *Store) GetOrCreateTokens(ctx context.Context, names []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		id, ok := s.tokens[name]
		if !ok {
			s.nextTokenID++
			id = s.nextTokenID
			s.tokens[name] = id
			s.tokenNames[id] = name
		}
		ids[name] = id
	}
	return ids, nil
}

func (s *Store) DeletePostingsByDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.postings, documentID)
	return nil
}

func (s *Store) BulkInsertPostings(ctx context.Context, postings []store.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range postings {
		if _, ok := s.tokenNames[p.TokenID]; !ok {
			return fmt.Errorf("posting references unknown token %d", p.TokenID)
		}
		s.postings[p.DocumentID] = append(s.postings[p.DocumentID], p)
	}
	return nil
}

func (s *Store) DeleteAllTokensAndPostings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
	s.tokenNames = make(map[int64]string)
	s.postings = make(map[int64][]store.Posting)
	return nil
}

func (s *Store) AggregatePostingsByDocument(ctx context.Context, names []string) ([]store.DocumentAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[int64]struct{}, len(names))
	for _, name := range names {
		if id, ok := s.tokens[name]; ok {
			wanted[id] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	result := make([]store.DocumentAggregate, 0)
	for docID, postings := range s.postings {
		var sum, rows int64
		distinct := make(map[int64]struct{})
		for _, p := range postings {
			if _, ok := wanted[p.TokenID]; !ok {
				continue
			}
			sum += int64(p.Weight)
			rows++
			distinct[p.TokenID] = struct{}{}
		}
		if rows == 0 {
			continue
		}
		result = append(result, store.DocumentAggregate{
			DocumentID:     docID,
			SumWeight:      sum,
			DistinctTokens: int64(len(distinct)),
			AvgWeight:      float64(sum) / float64(rows),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DocumentID < result[j].DocumentID })
	return result, nil
}

// PostingsFor returns a copy of the postings stored for a document.
func (s *Store) PostingsFor(documentID int64) []store.Posting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Posting, len(s.postings[documentID]))
	copy(out, s.postings[documentID])
	return out
}

// TokenName resolves a dictionary id back to its value.
func (s *Store) TokenName(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.tokenNames[id]
	return name, ok
}

func (s *Store) Migrate(ctx context.Context) error { return nil }
func (s *Store) Ping(ctx context.Context) error    { return nil }
func (s *Store) Close() error                      { return nil }
