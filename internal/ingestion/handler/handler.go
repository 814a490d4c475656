package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

// IdempotencyKeyHeader names the header whose value keys the published
// events.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxBodyBytes = 32 << 20

type Handler struct {
	schema    *schema.Schema
	publisher *publisher.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(s *schema.Schema, pub *publisher.Publisher, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.Default()
	}
	return &Handler{
		schema:    s,
		publisher: pub,
		metrics:   m,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/delete", h.Delete)
	mux.HandleFunc("GET /health", h.Health)
}

// Ingest accepts one JSON document or an array of documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	docs, err := splitDocuments(body)
	if err != nil {
		h.reject("add", 1)
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if err := validator.ValidateDocuments(h.schema, docs, key); err != nil {
		h.reject("add", max(1, len(docs)))
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.publisher.PublishDocuments(ctx, docs, key)
	if err != nil {
		log.Error("ingestion failed", "error", err)
		h.writePublishError(w, err)
		return
	}
	h.metrics.IngestPublishedTotal.WithLabelValues("add", "accepted").Add(float64(resp.Accepted))
	log.Info("documents accepted", "count", resp.Accepted)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Delete accepts a DeleteRequest.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject("delete", 1)
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateDelete(h.schema, &req); err != nil {
		h.reject("delete", 1)
		h.writeValidationError(w, err)
		return
	}
	resp, err := h.publisher.PublishDelete(ctx, req)
	if err != nil {
		log.Error("delete publish failed", "error", err)
		h.writePublishError(w, err)
		return
	}
	h.metrics.IngestPublishedTotal.WithLabelValues("delete", "accepted").Inc()
	log.Info("delete accepted", "field", req.Field, "value", req.Value)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitDocuments returns the elements of a JSON array, or body itself.
func splitDocuments(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, errors.New("invalid json")
	}
	if len(body) > 0 && body[0] == '[' {
		var docs []json.RawMessage
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	return []json.RawMessage{body}, nil
}

func (h *Handler) reject(op string, n int) {
	h.metrics.IngestPublishedTotal.WithLabelValues(op, "rejected").Add(float64(n))
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writePublishError(w http.ResponseWriter, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		w.Header().Set("Retry-After", "30")
	}
	h.writeError(w, http.StatusServiceUnavailable, "ingest topic unavailable")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
