// Package consumer applies document change events from Kafka to the
// indexing service.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/metrics"
)

// Indexer is the part of the indexing service the consumer drives.
type Indexer interface {
	IndexByID(ctx context.Context, id int64) (int, error)
	RemoveDocument(ctx context.Context, id int64) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler applying each document event to
// idx. Malformed events and upserts for documents that no longer exist are
// logged and acknowledged; store failures are returned so the message is
// not committed. m may be nil.
func HandleMessage(idx Indexer, topic string, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(status string) {
		if m != nil {
			m.EventsConsumedTotal.WithLabelValues(topic, status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.DocumentEvent](value)
		if err == nil {
			err = event.Validate()
		}
		if err != nil {
			logger.Error("dropping invalid document event",
				"error", err,
				"key", string(key),
			)
			count("invalid")
			return nil
		}

		switch event.Op {
		case events.OpUpsert:
			n, err := idx.IndexByID(ctx, event.DocumentID)
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				logger.Warn("document vanished before indexing", "doc_id", event.DocumentID)
				count("skipped")
				return nil
			}
			if err != nil {
				count("error")
				return fmt.Errorf("indexing document %d: %w", event.DocumentID, err)
			}
			logger.Info("document indexed", "doc_id", event.DocumentID, "token_count", n)
		case events.OpDelete:
			if err := idx.RemoveDocument(ctx, event.DocumentID); err != nil {
				count("error")
				return fmt.Errorf("removing document %d: %w", event.DocumentID, err)
			}
			logger.Info("document removed from index", "doc_id", event.DocumentID)
		}
		count("ok")
		return nil
	}
}
