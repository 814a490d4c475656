package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

type fakeProducer struct {
	batches [][]kafka.Event
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestAddEventKeys(t *testing.T) {
	doc := json.RawMessage(`{"title": "a"}`)
	assert.Equal(t, "given", AddEvent("given", doc).Key)

	hashed := AddEvent("", doc)
	assert.Len(t, hashed.Key, 64)
	assert.Equal(t, hashed.Key, AddEvent("", doc).Key)
	assert.NotEqual(t, hashed.Key, AddEvent("", json.RawMessage(`{"title": "b"}`)).Key)
	assert.Equal(t, consumer.IngestEvent{Op: consumer.OpAdd, Document: doc}, hashed.Value)
}

func TestPublishDocuments(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod)
	docs := []json.RawMessage{json.RawMessage(`{"title": "a"}`), json.RawMessage(`{"title": "b"}`)}

	resp, err := p.PublishDocuments(context.Background(), docs, "req")
	require.NoError(t, err)
	assert.Equal(t, &ingestion.IngestResponse{Accepted: 2, Keys: []string{"req/0", "req/1"}, Status: "PENDING"}, resp)
	require.Len(t, prod.batches, 1, "one batch per call")
	assert.Len(t, prod.batches[0], 2)
}

func TestPublishDelete(t *testing.T) {
	prod := &fakeProducer{}
	resp, err := New(prod).PublishDelete(context.Background(), ingestion.DeleteRequest{Field: "year", Value: "1818"})
	require.NoError(t, err)
	assert.Equal(t, []string{"year=1818"}, resp.Keys)
	assert.Equal(t, consumer.IngestEvent{Op: consumer.OpDelete, Field: "year", Value: "1818"}, prod.batches[0][0].Value)
}

func TestPublishOpensCircuit(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	p := New(prod)
	docs := []json.RawMessage{json.RawMessage(`{}`)}

	var err error
	for i := 0; i < 20 && !errors.Is(err, resilience.ErrCircuitOpen); i++ {
		_, err = p.PublishDocuments(context.Background(), docs, "")
		require.Error(t, err)
	}
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
