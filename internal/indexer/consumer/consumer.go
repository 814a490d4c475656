// Package consumer applies ingest events read from Kafka to an index
// writer and commits them on a size or time trigger.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
)

// IngestEvent is one change to the index. An add carries a JSON document;
// a delete names a field and a value that must analyse to one term.
type IngestEvent struct {
	Op       Op              `json:"op"`
	Document json.RawMessage `json:"document,omitempty"`
	Field    string          `json:"field,omitempty"`
	Value    string          `json:"value,omitempty"`
}

// Writer is the part of an index writer the consumer drives.
type Writer interface {
	AddJSON(text string) error
	DeleteTerm(t term.Term) error
	Commit() (indexer.CommitInfo, error)
}

// OffsetCommitter acknowledges source messages once their effects are
// committed to the index.
type OffsetCommitter interface {
	CommitProcessed(ctx context.Context) error
}

// IndexConsumer turns ingest events into writer operations.
type IndexConsumer struct {
	schema         *schema.Schema
	writer         Writer
	limiter        *rate.Limiter
	commitEvery    int
	commitInterval time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu        sync.Mutex
	pending   int
	committer OffsetCommitter
}

// New creates an IndexConsumer. A zero MaxDocsPerSecond disables
// throttling; a zero CommitEvery commits on the interval only.
func New(s *schema.Schema, w Writer, cfg config.IngestConfig, commitInterval time.Duration, m *metrics.Metrics) *IndexConsumer {
	limit := rate.Inf
	burst := 1
	if cfg.MaxDocsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxDocsPerSecond)
		burst = max(1, int(cfg.MaxDocsPerSecond))
	}
	if m == nil {
		m = metrics.Default()
	}
	return &IndexConsumer{
		schema:         s,
		writer:         w,
		limiter:        rate.NewLimiter(limit, burst),
		commitEvery:    cfg.CommitEvery,
		commitInterval: commitInterval,
		metrics:        m,
		logger:         slog.Default().With("component", "index-consumer"),
	}
}

// SetOffsetCommitter registers oc to run after every successful commit.
func (ic *IndexConsumer) SetOffsetCommitter(oc OffsetCommitter) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.committer = oc
}

// HandleMessage is a kafka.MessageHandler. Events that can never apply
// (malformed JSON, schema violations, unknown ops) wrap kafka.ErrSkip.
func (ic *IndexConsumer) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	if err := ic.limiter.Wait(ctx); err != nil {
		return err
	}
	event, err := kafka.DecodeJSON[IngestEvent](value)
	if err != nil {
		ic.metrics.IngestEventsTotal.WithLabelValues("unknown", "skipped").Inc()
		return err
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if err := ic.apply(event); err != nil {
		status := "error"
		if isPermanent(err) {
			status = "skipped"
			err = fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		}
		ic.metrics.IngestEventsTotal.WithLabelValues(string(event.Op), status).Inc()
		return fmt.Errorf("applying %s event %s: %w", event.Op, key, err)
	}
	ic.metrics.IngestEventsTotal.WithLabelValues(string(event.Op), "ok").Inc()
	ic.pending++
	ic.logger.Debug("event applied", "op", event.Op, "key", string(key), "pending", ic.pending)

	if ic.commitEvery > 0 && ic.pending >= ic.commitEvery {
		return ic.commitLocked(ctx)
	}
	return nil
}

func (ic *IndexConsumer) apply(event IngestEvent) error {
	switch event.Op {
	case OpAdd:
		if len(event.Document) == 0 {
			return fmt.Errorf("%w: add event without document", apperrors.ErrInvalidInput)
		}
		return ic.writer.AddJSON(string(event.Document))
	case OpDelete:
		t, err := parser.ParseTerm(ic.schema, event.Field, event.Value)
		if err != nil {
			return err
		}
		return ic.writer.DeleteTerm(t)
	}
	return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, event.Op)
}

// isPermanent reports whether redelivering the event could ever succeed.
func isPermanent(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidInput,
		apperrors.ErrInvalidArgument,
		apperrors.ErrMalformedJSON,
		apperrors.ErrSchemaMismatch,
		apperrors.ErrTypeMismatch,
		apperrors.ErrUnknownField,
		apperrors.ErrFieldNotIndexed,
		apperrors.ErrQuerySyntax,
		apperrors.ErrMalformedFacetPath,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Commit publishes the applied events, if any.
func (ic *IndexConsumer) Commit(ctx context.Context) error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.commitLocked(ctx)
}

func (ic *IndexConsumer) commitLocked(ctx context.Context) error {
	if ic.pending == 0 {
		return nil
	}
	info, err := ic.writer.Commit()
	if err != nil {
		// The writer has discarded the batch. Its offsets stay uncommitted
		// so the events are redelivered after a restart.
		ic.pending = 0
		return fmt.Errorf("committing ingest batch: %w", err)
	}
	ic.logger.Info("ingest batch committed",
		"opstamp", info.Opstamp,
		"events", ic.pending,
		"docs", info.Docs,
		"deletes", info.Deletes,
	)
	ic.pending = 0
	if ic.committer != nil {
		if err := ic.committer.CommitProcessed(ctx); err != nil {
			ic.logger.Warn("offset commit failed; events may be redelivered", "error", err)
		}
	}
	return nil
}

// Run commits on every commitInterval tick until ctx is cancelled, then
// commits once more with a fresh context.
func (ic *IndexConsumer) Run(ctx context.Context) {
	if ic.commitInterval <= 0 {
		<-ctx.Done()
	} else {
		ticker := time.NewTicker(ic.commitInterval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				if err := ic.Commit(ctx); err != nil {
					ic.logger.Error("periodic commit failed", "error", err)
				}
			}
		}
	}
	final, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ic.Commit(final); err != nil {
		ic.logger.Error("final commit failed", "error", err)
	}
}
