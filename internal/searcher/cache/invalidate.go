package cache

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/kafka"
)

// HandleIndexComplete returns a MessageHandler that drops the whole cache on
// every index-complete event. A failed invalidation is returned so the
// message is redelivered.
func HandleIndexComplete(c *QueryCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.IndexComplete](value)
		if err != nil {
			logger.Error("dropping invalid index-complete event", "error", err, "key", string(key))
			return nil
		}
		logger.Debug("index changed", "doc_id", event.DocumentID, "op", event.Op)
		return c.Invalidate(ctx)
	}
}
