// Package store defines the domain records of the inverted index and the two
// storage ports the engine consumes: DocumentStore (document text and cached
// token counts) and IndexStore (token dictionary, postings and the
// per-document aggregate query used for scoring).
package store

import (
	"context"
	"iter"
	"time"
)

const (
	// DocumentType is the single document kind currently indexed.
	DocumentType = "document"
	// FieldBody is the single indexed field.
	FieldBody = "body"
)

// Document is a stored text with its classification label. TokenCount is
// the number of postings written the last time the document was indexed.
type Document struct {
	ID         int64     `json:"id"`
	Body       string    `json:"body"`
	Label      string    `json:"label"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Posting links one dictionary token to one document field with a weight.
type Posting struct {
	TokenID      int64
	DocumentID   int64
	DocumentType string
	FieldID      string
	Weight       int
}

// DocumentAggregate is the per-document summary of the postings matching a
// token filter.
type DocumentAggregate struct {
	DocumentID     int64
	SumWeight      int64
	DistinctTokens int64
	AvgWeight      float64
}

// LabelCount is the number of documents carrying a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DocumentPatch names the fields an update replaces. Nil fields are kept.
type DocumentPatch struct {
	Body  *string
	Label *string
}

// ListOptions selects a page of documents in ascending id order. An empty
// Label matches every document.
type ListOptions struct {
	Label  string
	Offset int
	Limit  int
}

// DocumentStore owns document text and the cached token count.
type DocumentStore interface {
	// GetDocument returns errors.ErrDocumentNotFound when id is unknown.
	GetDocument(ctx context.Context, id int64) (Document, error)
	// GetDocuments returns the documents that exist among ids, in no
	// particular order.
	GetDocuments(ctx context.Context, ids []int64) ([]Document, error)
	// ListDocuments yields every document in ascending id order. The
	// sequence is lazy and may be iterated again from the start.
	ListDocuments(ctx context.Context) iter.Seq2[Document, error]
	SaveDocumentTokenCount(ctx context.Context, id int64, count int) error
}

// IndexStore owns the token dictionary and the postings.
type IndexStore interface {
	// GetOrCreateTokens resolves every name to a dictionary id, creating the
	// missing ones.
	GetOrCreateTokens(ctx context.Context, names []string) (map[string]int64, error)
	DeletePostingsByDocument(ctx context.Context, documentID int64) error
	BulkInsertPostings(ctx context.Context, postings []Posting) error
	DeleteAllTokensAndPostings(ctx context.Context) error
	// AggregatePostingsByDocument groups the postings whose token name is in
	// names by document and returns sum, distinct-token count and average of
	// their weights.
	AggregatePostingsByDocument(ctx context.Context, names []string) ([]DocumentAggregate, error)
}

// Locker serializes index work across every client of one store. Each method
// blocks until the lock is held or ctx is done and returns the release
// function.
type Locker interface {
	// LockIndex holds the whole index exclusively; used by full rebuilds.
	LockIndex(ctx context.Context) (func(), error)
	// RLockIndex holds the index shared; used by searches.
	RLockIndex(ctx context.Context) (func(), error)
	// LockDocument holds the index shared plus the single-writer lock of id.
	LockDocument(ctx context.Context, id int64) (func(), error)
}

// Store is a backend serving both ports plus the administrative operations
// used by the binaries.
type Store interface {
	DocumentStore
	IndexStore
	Locker
	CreateDocument(ctx context.Context, body, label string) (Document, error)
	// UpdateDocument applies patch and returns the stored result. Postings
	// are not touched; callers re-index when the body changed.
	UpdateDocument(ctx context.Context, id int64, patch DocumentPatch) (Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	PageDocuments(ctx context.Context, opts ListOptions) ([]Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	LabelCounts(ctx context.Context) ([]LabelCount, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
