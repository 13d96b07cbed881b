// Package ingestion accepts documents over HTTP, stores them and hands them
// to the indexer either in-process or through document change events.
package ingestion

// IngestRequest is the JSON body accepted by POST /api/v1/documents.
type IngestRequest struct {
	Body  string `json:"body"`
	Label string `json:"label"`
}

// UpdateRequest is the JSON body accepted by PUT /api/v1/documents/{id}.
// Absent fields keep their stored value.
type UpdateRequest struct {
	Body  *string `json:"body"`
	Label *string `json:"label"`
}

const (
	StatusIndexed = "indexed"
	StatusQueued  = "queued"
	// StatusStored means only the label changed, so the index was not
	// touched.
	StatusStored = "stored"
)

// IngestResponse is returned once the document is stored. Status is
// StatusQueued when indexing happens asynchronously, in which case
// TokenCount is zero.
type IngestResponse struct {
	DocumentID int64  `json:"document_id"`
	Label      string `json:"label,omitempty"`
	Status     string `json:"status"`
	TokenCount int    `json:"token_count,omitempty"`
}
