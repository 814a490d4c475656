package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// MinHeapBytes is the smallest accepted writer memory budget.
const MinHeapBytes = 1 << 20

// CommitInfo describes a successful commit.
type CommitInfo struct {
	Opstamp     uint64        `json:"opstamp"`
	Segments    []string      `json:"segments"`
	Docs        int           `json:"docs"`
	Deletes     int           `json:"deletes"`
	Duration    time.Duration `json:"duration"`
	CommittedAt time.Time     `json:"committed_at"`
}

type pendingDoc struct {
	fields []document.FieldValue
	size   int64
}

// IndexWriter buffers adds and deletes until Commit publishes them as one
// atomic unit. Only one writer may be open per Index.
type IndexWriter struct {
	idx       *Index
	heapBytes int64
	threads   int
	segWriter *segment.Writer
	logger    *slog.Logger

	mu          sync.Mutex
	closed      bool
	pending     []pendingDoc
	pendingSize int64
	staged      []directory.SegmentMeta
	deletes     []term.Term
	stagedDocs  int
	onCommit    func(CommitInfo)
}

func newWriter(idx *Index, heapBytes int64, threads int) *IndexWriter {
	if heapBytes < MinHeapBytes {
		heapBytes = MinHeapBytes
	}
	if threads < 1 {
		threads = 1
	}
	return &IndexWriter{
		idx:       idx,
		heapBytes: heapBytes,
		threads:   threads,
		segWriter: segment.NewWriter(idx.dir, idx.compression),
		logger:    slog.Default().With("component", "index-writer"),
	}
}

// OnCommit registers fn to run after every successful commit.
func (w *IndexWriter) OnCommit(fn func(CommitInfo)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onCommit = fn
}

// AddDocument validates doc and buffers it. When the buffer outgrows the
// heap budget it is written to a segment that stays invisible until the
// next commit. On any error doc is not buffered; documents added before
// it stay pending.
func (w *IndexWriter) AddDocument(doc *document.Document) error {
	fvs, err := doc.Validate(w.idx.schema)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return apperrors.ErrWriterClosed
	}
	size := estimateSize(fvs)
	w.pending = append(w.pending, pendingDoc{fields: fvs, size: size})
	w.pendingSize += size
	w.logger.Debug("document buffered", "fields", len(fvs), "pending", len(w.pending))
	if w.pendingSize >= w.heapBytes {
		w.logger.Info("writer heap budget reached, flushing",
			"size", w.pendingSize,
			"threshold", w.heapBytes,
		)
		if err := w.flushLocked(); err != nil {
			w.pending = w.pending[:len(w.pending)-1]
			w.pendingSize -= size
			return fmt.Errorf("flushing writer buffer: %w", err)
		}
	}
	return nil
}

// AddJSON decodes a JSON object against the index schema and adds it.
func (w *IndexWriter) AddJSON(text string) error {
	doc, err := document.DecodeJSON(w.idx.schema, text)
	if err != nil {
		return err
	}
	return w.AddDocument(doc)
}

// DeleteTerm records a delete. At commit it removes every document
// containing t in the existing segments and in this commit's adds.
func (w *IndexWriter) DeleteTerm(t term.Term) error {
	if !w.idx.schema.HasField(t.Field) {
		return fmt.Errorf("%w: field id %d", apperrors.ErrUnknownField, t.Field)
	}
	if entry := w.idx.schema.Entry(t.Field); !entry.Options.Indexed {
		return fmt.Errorf("%w: %q", apperrors.ErrFieldNotIndexed, entry.Name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return apperrors.ErrWriterClosed
	}
	w.deletes = append(w.deletes, term.Term{Field: t.Field, Bytes: append([]byte(nil), t.Bytes...)})
	return nil
}

// PendingDocs is the number of documents added since the last commit.
func (w *IndexWriter) PendingDocs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) + w.stagedDocs
}

// Commit writes the buffered documents and publishes them together with
// the buffered deletes in one metadata transaction. On failure nothing is
// published, the buffer is discarded and the error wraps ErrIO.
func (w *IndexWriter) Commit() (CommitInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return CommitInfo{}, apperrors.ErrWriterClosed
	}
	start := time.Now()
	info, err := w.commitLocked()
	m := w.idx.metrics
	if err != nil {
		m.CommitsTotal.WithLabelValues("error").Inc()
		w.logger.Error("commit failed", "error", err)
		return CommitInfo{}, err
	}
	info.Duration = time.Since(start)
	m.CommitsTotal.WithLabelValues("ok").Inc()
	m.CommitDuration.Observe(info.Duration.Seconds())
	m.DocsIndexedTotal.Add(float64(info.Docs))
	m.DeleteTermsTotal.Add(float64(info.Deletes))
	w.logger.Info("commit complete",
		"opstamp", info.Opstamp,
		"docs", info.Docs,
		"deletes", info.Deletes,
		"segments", len(info.Segments),
		"duration", info.Duration,
	)
	if w.onCommit != nil {
		w.onCommit(info)
	}
	return info, nil
}

func (w *IndexWriter) commitLocked() (CommitInfo, error) {
	if err := w.flushLocked(); err != nil {
		w.discardLocked()
		return CommitInfo{}, fmt.Errorf("commit: %w", err)
	}
	staged := w.staged
	deletes := w.deletes
	meta, err := w.idx.dir.CommitMeta(func(m *directory.Meta) error {
		m.Opstamp++
		m.Schema = w.idx.schema.Fields()
		for _, sm := range staged {
			sm.Opstamp = m.Opstamp
			m.Segments = append(m.Segments, sm)
		}
		for _, t := range deletes {
			m.Tombstones = append(m.Tombstones, directory.Tombstone{
				Field:   t.Field,
				Bytes:   t.Bytes,
				Opstamp: m.Opstamp,
			})
		}
		return nil
	})
	if err != nil {
		w.discardLocked()
		return CommitInfo{}, fmt.Errorf("commit: %w", asIO(err))
	}

	info := CommitInfo{
		Opstamp:     meta.Opstamp,
		Docs:        w.stagedDocs,
		Deletes:     len(deletes),
		CommittedAt: time.Now().UTC(),
	}
	for _, sm := range staged {
		info.Segments = append(info.Segments, sm.ID)
	}
	w.staged = nil
	w.deletes = nil
	w.stagedDocs = 0
	return info, nil
}

// flushLocked analyses the pending documents on up to threads goroutines
// and writes them as one unpublished segment.
func (w *IndexWriter) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	analyzed := make([]index.AnalyzedDoc, len(w.pending))
	var g errgroup.Group
	g.SetLimit(w.threads)
	for i, pd := range w.pending {
		g.Go(func() error {
			a, err := index.Analyze(w.idx.schema, pd.fields)
			if err != nil {
				return err
			}
			analyzed[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("analysing documents: %w", err)
	}

	mem := index.NewMemoryIndex()
	for _, a := range analyzed {
		mem.AddDocument(a)
	}
	id := uuid.NewString()
	name, err := w.segWriter.Write(id, mem.Snapshot())
	if err != nil {
		return err
	}
	w.staged = append(w.staged, directory.SegmentMeta{ID: id, NumDocs: uint32(len(w.pending))})
	w.stagedDocs += len(w.pending)
	w.logger.Debug("segment staged", "segment", name, "docs", len(w.pending))
	w.pending = nil
	w.pendingSize = 0
	return nil
}

// Rollback drops every buffered add and delete and removes segments
// staged since the last commit.
func (w *IndexWriter) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return apperrors.ErrWriterClosed
	}
	w.discardLocked()
	return nil
}

func (w *IndexWriter) discardLocked() {
	for _, sm := range w.staged {
		if err := w.idx.dir.Remove(sm.FileName()); err != nil {
			w.logger.Warn("removing staged segment failed", "segment", sm.ID, "error", err)
		}
	}
	w.pending = nil
	w.pendingSize = 0
	w.staged = nil
	w.deletes = nil
	w.stagedDocs = 0
}

// Close discards uncommitted changes and releases the writer lock.
func (w *IndexWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if len(w.pending)+w.stagedDocs+len(w.deletes) > 0 {
		w.logger.Warn("closing writer with uncommitted changes",
			"docs", len(w.pending)+w.stagedDocs,
			"deletes", len(w.deletes),
		)
	}
	w.discardLocked()
	w.closed = true
	w.idx.releaseWriter(w)
	return nil
}

func estimateSize(fvs []document.FieldValue) int64 {
	var size int64 = 64
	for _, fv := range fvs {
		size += 48
		if text, ok := fv.Value.Text(); ok {
			size += int64(len(text)) * 3
		} else if b, ok := fv.Value.Bytes(); ok {
			size += int64(len(b))
		}
	}
	return size
}

func asIO(err error) error {
	if errors.Is(err, apperrors.ErrIO) {
		return err
	}
	return apperrors.IO("storage failure", err)
}
