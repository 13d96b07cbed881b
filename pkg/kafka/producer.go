package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
)

// Event is one JSON message. Key selects the partition, so events sharing a
// key (one document) are delivered in publish order.
type Event struct {
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events to one topic and waits for every in-sync
// replica to acknowledge.
type Producer struct {
	topic  string
	writer messageWriter
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(topic, &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	})
}

func newProducer(topic string, w messageWriter) *Producer {
	return &Producer{
		topic:  topic,
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so an unencodable
// event leaves the topic untouched.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encoding event %q: %w", e.Key, err)
		}
		msgs[i] = kafka.Message{
			Key:     []byte(e.Key),
			Value:   value,
			Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
		}
	}
	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing %d event(s) to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("published", "count", len(msgs), "latency_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Producer) Topic() string {
	return p.topic
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
