// Package publisher turns documents and delete requests into ingest
// events and publishes them to Kafka for the indexer service.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

// Producer is the part of kafka.Producer the publisher uses.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	producer Producer
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
}

func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		breaker:  resilience.NewCircuitBreaker("ingest-producer", resilience.CircuitBreakerConfig{}),
		logger:   slog.Default().With("component", "publisher"),
	}
}

// AddEvent wraps doc in an add event. An empty key is replaced by the
// content hash of doc, so identical documents land on one partition.
func AddEvent(key string, doc json.RawMessage) kafka.Event {
	if key == "" {
		sum := sha256.Sum256(doc)
		key = hex.EncodeToString(sum[:])
	}
	return kafka.Event{
		Key:   key,
		Value: consumer.IngestEvent{Op: consumer.OpAdd, Document: doc},
	}
}

// DeleteEvent wraps req in a delete event keyed by the term.
func DeleteEvent(req ingestion.DeleteRequest) kafka.Event {
	return kafka.Event{
		Key:   req.Field + "=" + req.Value,
		Value: consumer.IngestEvent{Op: consumer.OpDelete, Field: req.Field, Value: req.Value},
	}
}

// PublishDocuments publishes one add event per document. With an
// idempotency key the event keys are key/0, key/1, ...
func (p *Publisher) PublishDocuments(ctx context.Context, docs []json.RawMessage, idempotencyKey string) (*ingestion.IngestResponse, error) {
	events := make([]kafka.Event, len(docs))
	for i, doc := range docs {
		key := ""
		if idempotencyKey != "" {
			key = fmt.Sprintf("%s/%d", idempotencyKey, i)
		}
		events[i] = AddEvent(key, doc)
	}
	return p.Publish(ctx, events)
}

// PublishDelete publishes a single delete event.
func (p *Publisher) PublishDelete(ctx context.Context, req ingestion.DeleteRequest) (*ingestion.IngestResponse, error) {
	return p.Publish(ctx, []kafka.Event{DeleteEvent(req)})
}

// Publish writes events in one batch. Repeated producer failures open a
// circuit breaker and later calls fail fast with ErrCircuitOpen.
func (p *Publisher) Publish(ctx context.Context, events []kafka.Event) (*ingestion.IngestResponse, error) {
	err := p.breaker.Execute(func() error {
		return p.producer.PublishBatch(ctx, events)
	})
	if err != nil {
		p.logger.Error("failed to publish ingest events", "count", len(events), "error", err)
		return nil, fmt.Errorf("publishing %d events: %w", len(events), err)
	}
	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = e.Key
	}
	p.logger.Debug("ingest events published", "count", len(events))
	return &ingestion.IngestResponse{Accepted: len(events), Keys: keys, Status: "PENDING"}, nil
}
