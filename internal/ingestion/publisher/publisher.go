// Package publisher stores accepted documents and hands them to the indexer.
// With an event publisher configured it emits document change events and
// returns at once; otherwise it indexes in-process before returning.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
)

// Documents is the document side of the store the publisher writes to.
type Documents interface {
	CreateDocument(ctx context.Context, body, label string) (store.Document, error)
	UpdateDocument(ctx context.Context, id int64, patch store.DocumentPatch) (store.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

// Indexer is used when no event publisher is configured.
type Indexer interface {
	IndexDocument(ctx context.Context, doc store.Document) (int, error)
	IndexByID(ctx context.Context, id int64) (int, error)
	RemoveDocument(ctx context.Context, id int64) error
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	docs    Documents
	indexer Indexer
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Publisher. events and m may be nil.
func New(docs Documents, indexer Indexer, events EventPublisher, m *metrics.Metrics) *Publisher {
	return &Publisher{
		docs:    docs,
		indexer: indexer,
		events:  events,
		metrics: m,
		logger:  slog.Default().With("component", "publisher"),
	}
}

// Ingest stores a validated request. A failure after the document is stored
// is returned with the stored id so the caller can retry the indexing step
// with an index or upsert request.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	doc, err := p.docs.CreateDocument(ctx, req.Body, req.Label)
	if err != nil {
		return nil, apperrors.Store("storing document", err)
	}
	p.count("create")
	resp := &ingestion.IngestResponse{DocumentID: doc.ID, Label: doc.Label}

	if p.events != nil {
		if err := p.emit(ctx, events.OpUpsert, doc.ID); err != nil {
			return resp, err
		}
		resp.Status = ingestion.StatusQueued
		return resp, nil
	}
	n, err := p.indexer.IndexDocument(ctx, doc)
	if err != nil {
		return resp, err
	}
	resp.Status = ingestion.StatusIndexed
	resp.TokenCount = n
	return resp, nil
}

// Update applies a validated patch. A new body is re-indexed, from the
// stored text so a concurrent update cannot leave older postings behind; a
// label-only change leaves the index alone.
func (p *Publisher) Update(ctx context.Context, id int64, req *ingestion.UpdateRequest) (*ingestion.IngestResponse, error) {
	doc, err := p.docs.UpdateDocument(ctx, id, store.DocumentPatch{Body: req.Body, Label: req.Label})
	if err != nil {
		return nil, apperrors.Store(fmt.Sprintf("updating document %d", id), err)
	}
	p.count("update")
	resp := &ingestion.IngestResponse{DocumentID: doc.ID, Label: doc.Label, Status: ingestion.StatusStored, TokenCount: doc.TokenCount}
	if req.Body == nil {
		return resp, nil
	}

	if p.events != nil {
		if err := p.emit(ctx, events.OpUpsert, doc.ID); err != nil {
			return resp, err
		}
		resp.Status = ingestion.StatusQueued
		resp.TokenCount = 0
		return resp, nil
	}
	n, err := p.indexer.IndexByID(ctx, doc.ID)
	if err != nil {
		return resp, err
	}
	resp.Status = ingestion.StatusIndexed
	resp.TokenCount = n
	return resp, nil
}

// Delete removes the stored document, then its postings.
func (p *Publisher) Delete(ctx context.Context, id int64) error {
	if err := p.docs.DeleteDocument(ctx, id); err != nil {
		return apperrors.Store(fmt.Sprintf("deleting document %d", id), err)
	}
	p.count("delete")
	if p.events != nil {
		return p.emit(ctx, events.OpDelete, id)
	}
	return p.indexer.RemoveDocument(ctx, id)
}

func (p *Publisher) emit(ctx context.Context, op string, id int64) error {
	event := events.DocumentEvent{Op: op, DocumentID: id}
	if err := p.events.Publish(ctx, kafka.Event{Key: event.Key(), Value: event}); err != nil {
		p.logger.Error("document event not published", "doc_id", id, "op", op, "error", err)
		return fmt.Errorf("publishing %s event for document %d: %w", op, id, err)
	}
	return nil
}

func (p *Publisher) count(op string) {
	if p.metrics != nil {
		p.metrics.DocsIngestedTotal.WithLabelValues(op).Inc()
	}
}
