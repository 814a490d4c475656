package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func setup(t *testing.T) (*http.ServeMux, *fakeProducer, *metrics.Metrics) {
	t.Helper()
	b := schema.NewBuilder()
	_, err := b.AddTextField("title", schema.FieldOptions{Stored: true})
	require.NoError(t, err)
	_, err = b.AddU64Field("year", schema.FieldOptions{Indexed: true})
	require.NoError(t, err)

	prod := &fakeProducer{}
	m := metrics.New(prometheus.NewRegistry())
	mux := http.NewServeMux()
	New(b.Build(), publisher.New(prod), m).Routes(mux)
	return mux, prod, m
}

func do(mux http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestSingleDocument(t *testing.T) {
	mux, prod, m := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/documents", `{"title": "Frankenstein", "year": 1818}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Len(t, resp.Keys[0], 64)

	require.Len(t, prod.events, 1)
	ev := prod.events[0].Value.(consumer.IngestEvent)
	assert.Equal(t, consumer.OpAdd, ev.Op)
	assert.JSONEq(t, `{"title": "Frankenstein", "year": 1818}`, string(ev.Document))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestPublishedTotal.WithLabelValues("add", "accepted")))
}

func TestIngestBatchWithIdempotencyKey(t *testing.T) {
	mux, prod, _ := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/documents",
		`[{"title": "a"}, {"title": "b"}]`,
		map[string]string{IdempotencyKeyHeader: "req-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, prod.events, 2)
	assert.Equal(t, "req-1/0", prod.events[0].Key)
	assert.Equal(t, "req-1/1", prod.events[1].Key)
}

func TestIngestRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{name: "unknown field", body: `{"author": "Shelley"}`, fields: []string{"documents[0]"}},
		{name: "wrong type", body: `[{"title": "ok"}, {"year": "soon"}]`, fields: []string{"documents[1]"}},
		{name: "empty batch", body: `[]`, fields: []string{"documents"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, prod, m := setup(t)
			rec := do(mux, http.MethodPost, "/api/v1/documents", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body struct {
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			for _, f := range tt.fields {
				assert.Contains(t, body.Fields, f)
			}
			assert.Empty(t, prod.events)
			assert.Positive(t, testutil.ToFloat64(m.IngestPublishedTotal.WithLabelValues("add", "rejected")))
		})
	}
}

func TestIngestMalformedBody(t *testing.T) {
	mux, _, _ := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/documents", `{"title":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	mux, prod, _ := setup(t)
	rec := do(mux, http.MethodPost, "/api/v1/documents/delete", `{"field": "year", "value": "1818"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, prod.events, 1)
	assert.Equal(t, "year=1818", prod.events[0].Key)
	assert.Equal(t, consumer.IngestEvent{Op: consumer.OpDelete, Field: "year", Value: "1818"}, prod.events[0].Value)

	for _, body := range []string{
		`{"field": "", "value": "x"}`,
		`{"field": "bod", "value": "x"}`,
		`{"field": "title", "value": "two words"}`,
		`not json`,
	} {
		rec := do(mux, http.MethodPost, "/api/v1/documents/delete", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPublishFailure(t *testing.T) {
	mux, prod, _ := setup(t)
	prod.err = errors.New("broker down")
	rec := do(mux, http.MethodPost, "/api/v1/documents", `{"title": "a"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
