// Package events defines the JSON messages exchanged over Kafka between the
// binaries: document change events consumed by the indexer and
// index-complete notifications consumed by searchers.
package events

import (
	"fmt"
	"strconv"
	"time"
)

// Document change operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Index-complete operations.
const (
	OpIndexed = "indexed"
	OpRemoved = "removed"
	OpReindex = "reindex"
)

// DocumentEvent asks the indexer to (re)index or drop a stored document.
type DocumentEvent struct {
	Op         string `json:"op"`
	DocumentID int64  `json:"document_id"`
}

func (e DocumentEvent) Validate() error {
	if e.Op != OpUpsert && e.Op != OpDelete {
		return fmt.Errorf("unknown document event op %q", e.Op)
	}
	if e.DocumentID <= 0 {
		return fmt.Errorf("document event without a valid document id")
	}
	return nil
}

// Key partitions events by document so changes to one document stay
// ordered.
func (e DocumentEvent) Key() string {
	return strconv.FormatInt(e.DocumentID, 10)
}

// IndexComplete reports a finished index mutation. DocumentID is zero for
// OpReindex, where TokenCount is the total number of postings written.
type IndexComplete struct {
	DocumentID int64     `json:"document_id"`
	Op         string    `json:"op"`
	TokenCount int       `json:"token_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

func (e IndexComplete) Key() string {
	return strconv.FormatInt(e.DocumentID, 10)
}
