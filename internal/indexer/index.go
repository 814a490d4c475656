// Package indexer ties the storage, writer, reader and searcher layers
// into one Index handle.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/reader"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

// Option customises an Index.
type Option func(*Index)

// WithMetrics replaces the process-wide collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(idx *Index) { idx.metrics = m }
}

// Index is one logical index: a schema, a directory and a reader. Many
// searchers may be used concurrently; at most one writer is open.
type Index struct {
	schema      *schema.Schema
	dir         directory.Directory
	cfg         *config.Config
	compression segment.Compression
	scorer      ranker.Scorer
	metrics     *metrics.Metrics
	reader      *reader.IndexReader
	logger      *slog.Logger

	writerMu sync.Mutex
	writer   *IndexWriter
}

// New creates an index held in memory.
func New(s *schema.Schema, cfg *config.Config, opts ...Option) (*Index, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: schema is required", apperrors.ErrInvalidArgument)
	}
	return NewWithDirectory(directory.NewRAMDirectory(), s, cfg, opts...)
}

// Exists reports whether an index has been created at path.
func Exists(path string) bool {
	return directory.Exists(path)
}

// Open opens the index at path, creating it when absent. Opening an
// existing index requires reuse. A nil schema adopts the stored one; a
// different schema fails with ErrSchemaMismatch.
func Open(path string, s *schema.Schema, reuse bool, cfg *config.Config, opts ...Option) (*Index, error) {
	if Exists(path) && !reuse {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexExists, path)
	}
	dir, err := directory.OpenFS(path)
	if err != nil {
		return nil, err
	}
	return NewWithDirectory(dir, s, cfg, opts...)
}

// NewWithDirectory opens or initialises an index stored in dir.
func NewWithDirectory(dir directory.Directory, s *schema.Schema, cfg *config.Config, opts ...Option) (*Index, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	compression, err := segment.ParseCompression(cfg.Index.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidArgument, err)
	}
	scorer, err := ranker.Get(cfg.Search.Scorer)
	if err != nil {
		return nil, err
	}
	s, err = initMeta(dir, s)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		schema:      s,
		dir:         dir,
		cfg:         cfg,
		compression: compression,
		scorer:      scorer,
		logger:      slog.Default().With("component", "index", "directory", dir.String()),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.metrics == nil {
		idx.metrics = metrics.Default()
	}
	idx.reader, err = reader.New(dir, s, reader.WithMetrics(idx.metrics))
	if err != nil {
		return nil, err
	}
	policy, err := reader.ParsePolicy(cfg.Index.ReloadPolicy)
	if err != nil {
		idx.reader.Close()
		return nil, err
	}
	if policy == reader.OnCommit {
		idx.reader.Configure(policy, cfg.Index.ReloadDelay)
	}
	idx.logger.Info("index opened",
		"fields", s.NumFields(),
		"segments", idx.reader.Snapshot().NumSegments(),
		"num_docs", idx.reader.Snapshot().NumDocs(),
	)
	return idx, nil
}

// initMeta checks s against the stored schema, or stores s when the
// directory holds no index yet.
func initMeta(dir directory.Directory, s *schema.Schema) (*schema.Schema, error) {
	meta, err := dir.LoadMeta()
	switch {
	case err == nil:
		stored, err := meta.LoadSchema()
		if err != nil {
			return nil, err
		}
		if s == nil {
			return stored, nil
		}
		if !s.Equal(stored) {
			return nil, fmt.Errorf("%w: index was created with %s, opened with %s",
				apperrors.ErrSchemaMismatch, stored, s)
		}
		return s, nil
	case errors.Is(err, apperrors.ErrIndexNotFound):
		if s == nil {
			return nil, fmt.Errorf("%w: a schema is required to create an index in %s",
				apperrors.ErrInvalidArgument, dir)
		}
		if _, err := dir.CommitMeta(func(m *directory.Meta) error {
			m.Schema = s.Fields()
			return nil
		}); err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
		return s, nil
	}
	return nil, err
}

func (idx *Index) Schema() *schema.Schema { return idx.schema }

func (idx *Index) Directory() directory.Directory { return idx.dir }

func (idx *Index) Reader() *reader.IndexReader { return idx.reader }

func (idx *Index) Config() *config.Config { return idx.cfg }

// Writer opens the index writer. heapBytes and threads fall back to the
// configured values when zero. A second open writer fails with
// ErrWriterLocked.
func (idx *Index) Writer(heapBytes int64, threads int) (*IndexWriter, error) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()
	if idx.writer != nil {
		return nil, apperrors.ErrWriterLocked
	}
	if heapBytes == 0 {
		heapBytes = idx.cfg.Index.HeapBytes
	}
	if threads == 0 {
		threads = idx.cfg.Index.Threads
	}
	idx.writer = newWriter(idx, heapBytes, threads)
	return idx.writer, nil
}

func (idx *Index) releaseWriter(w *IndexWriter) {
	idx.writerMu.Lock()
	defer idx.writerMu.Unlock()
	if idx.writer == w {
		idx.writer = nil
	}
}

// ConfigReader sets the reload policy ("Manual" or "OnCommit") and the
// poll delay used by OnCommit.
func (idx *Index) ConfigReader(policy string, delay time.Duration) error {
	p, err := reader.ParsePolicy(policy)
	if err != nil {
		return err
	}
	idx.reader.Configure(p, delay)
	return nil
}

// Reload makes the latest commit visible to new searchers.
func (idx *Index) Reload(ctx context.Context) error {
	_, err := idx.reader.Reload(ctx)
	return err
}

// WaitForOpstamp waits until a commit is visible, bounded by the
// configured maxReloadWait.
func (idx *Index) WaitForOpstamp(ctx context.Context, opstamp uint64) error {
	if wait := idx.cfg.Index.MaxReloadWait; wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	_, err := idx.reader.WaitForOpstamp(ctx, opstamp)
	return err
}

// Searcher returns a searcher over the current snapshot.
func (idx *Index) Searcher() *searcher.Searcher {
	return searcher.New(idx.reader.Snapshot(), idx.scorer)
}

// QueryParser builds a parser over defaultFields, the configured default
// fields, or every indexed text field, in that order of preference.
func (idx *Index) QueryParser(defaultFields ...string) (*parser.QueryParser, error) {
	if len(defaultFields) == 0 {
		defaultFields = idx.cfg.Search.DefaultFields
	}
	p, err := parser.New(idx.schema, defaultFields...)
	if err != nil {
		return nil, err
	}
	if idx.cfg.Search.Conjunction {
		p.SetConjunctionByDefault()
	}
	return p, nil
}

// ParseQuery parses text against defaultFields.
func (idx *Index) ParseQuery(text string, defaultFields ...string) (*query.Parsed, error) {
	p, err := idx.QueryParser(defaultFields...)
	if err != nil {
		return nil, err
	}
	return p.Parse(text)
}

// Close stops the reader and discards an open writer's pending changes.
func (idx *Index) Close() error {
	idx.writerMu.Lock()
	w := idx.writer
	idx.writerMu.Unlock()
	if w != nil {
		w.Close()
	}
	err := idx.reader.Close()
	if cerr := idx.dir.Close(); err == nil {
		err = cerr
	}
	return err
}
