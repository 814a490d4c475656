// Package reader publishes immutable snapshots of the committed segments
// and refreshes them either on demand or by polling for new commits.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

// Policy decides when the reader picks up new commits.
type Policy int

const (
	Manual Policy = iota
	OnCommit
)

func (p Policy) String() string {
	if p == OnCommit {
		return "OnCommit"
	}
	return "Manual"
}

// ParsePolicy accepts "manual" and "oncommit" in any case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "manual":
		return Manual, nil
	case "oncommit", "on_commit":
		return OnCommit, nil
	}
	return Manual, fmt.Errorf("%w: unknown reload policy %q", apperrors.ErrInvalidArgument, s)
}

// MinPollInterval bounds how often the OnCommit loop polls.
const MinPollInterval = time.Millisecond

// IndexReader holds the current snapshot. Searches load it with a single
// atomic read and never block on reloads.
type IndexReader struct {
	dir     directory.Directory
	schema  *schema.Schema
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group

	mu       sync.Mutex
	closed   bool
	segments map[string]*SegmentSnapshot
	notify   chan struct{}

	loopMu sync.Mutex
	policy Policy
	delay  time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures an IndexReader.
type Option func(*IndexReader)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *IndexReader) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *IndexReader) { r.logger = l }
}

// New creates a reader and loads the latest commit, if any.
func New(dir directory.Directory, s *schema.Schema, opts ...Option) (*IndexReader, error) {
	r := &IndexReader{
		dir:      dir,
		schema:   s,
		logger:   slog.Default().With("component", "index-reader"),
		segments: make(map[string]*SegmentSnapshot),
		notify:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(newSnapshot(s, nil, 0))
	ok, err := dir.HasMeta()
	if err != nil {
		return nil, err
	}
	if ok {
		if _, err := r.Reload(context.Background()); err != nil && !errors.Is(err, apperrors.ErrIndexNotFound) {
			return nil, err
		}
	}
	return r, nil
}

// Snapshot returns the currently published snapshot.
func (r *IndexReader) Snapshot() *Snapshot {
	return r.current.Load()
}

// Policy returns the active reload policy and poll delay.
func (r *IndexReader) Policy() (Policy, time.Duration) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.policy, r.delay
}

// Reload publishes the latest committed state. Concurrent calls share one
// load. Reloading with no new commit returns the current snapshot.
func (r *IndexReader) Reload(ctx context.Context) (*Snapshot, error) {
	return r.reload(ctx, "manual")
}

func (r *IndexReader) reload(ctx context.Context, trigger string) (*Snapshot, error) {
	ch := r.group.DoChan("reload", func() (any, error) {
		return r.load()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		status := "ok"
		if res.Err != nil {
			status = "error"
		}
		if r.metrics != nil {
			r.metrics.ReloadsTotal.WithLabelValues(trigger, status).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (r *IndexReader) load() (*Snapshot, error) {
	meta, err := r.dir.LoadMeta()
	if err != nil {
		if errors.Is(err, apperrors.ErrIO) {
			return nil, fmt.Errorf("reloading reader: %w", err)
		}
		return nil, apperrors.IO("reloading reader", err)
	}
	cur := r.current.Load()
	if cur != nil && cur.Opstamp == meta.Opstamp && len(cur.Segments) == len(meta.Segments) && cur.Opstamp > 0 {
		return cur, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A load that outlived its caller must not reopen segments after Close.
	if r.closed {
		return nil, apperrors.ErrReaderClosed
	}

	segs := make([]*SegmentSnapshot, 0, len(meta.Segments))
	var opened []*segment.Reader
	fail := func(err error) (*Snapshot, error) {
		for _, rd := range opened {
			rd.Close()
		}
		return nil, err
	}
	for ord, sm := range meta.Segments {
		prev, cached := r.segments[sm.ID]
		var rd *segment.Reader
		if cached {
			rd = prev.Reader
		} else {
			rd, err = segment.OpenSegment(r.dir, sm.FileName())
			if err != nil {
				return fail(fmt.Errorf("opening segment %s: %w", sm.ID, err))
			}
			opened = append(opened, rd)
		}
		seg := &SegmentSnapshot{Ord: ord, ID: sm.ID, Opstamp: sm.Opstamp, Reader: rd}
		from := 0
		if cached {
			seg.Deleted = prev.Deleted
			from = prev.tombstones
		}
		if err := applyTombstones(seg, meta.Tombstones, from); err != nil {
			return fail(err)
		}
		segs = append(segs, seg)
	}
	for _, seg := range segs {
		r.segments[seg.ID] = seg
	}

	snap := newSnapshot(r.schema, segs, meta.Opstamp)
	r.current.Store(snap)
	close(r.notify)
	r.notify = make(chan struct{})

	if r.metrics != nil {
		r.metrics.Segments.Set(float64(snap.NumSegments()))
		r.metrics.LiveDocs.Set(float64(snap.NumDocs()))
	}
	r.logger.Debug("reader reloaded",
		"opstamp", snap.Opstamp,
		"segments", snap.NumSegments(),
		"num_docs", snap.NumDocs(),
	)
	return snap, nil
}

// applyTombstones extends seg.Deleted with the tombstones from index from
// onwards that apply to the segment. Bitmaps of published snapshots are
// never mutated; a changed bitmap is a clone.
func applyTombstones(seg *SegmentSnapshot, tombstones []directory.Tombstone, from int) error {
	var deleted *roaring.Bitmap
	for _, t := range tombstones[from:] {
		if t.Opstamp < seg.Opstamp {
			continue
		}
		postings, err := seg.Reader.Postings(term.AppendKey(nil, t.Field, t.Bytes))
		if err != nil {
			return fmt.Errorf("applying tombstone: %w", err)
		}
		if len(postings) == 0 {
			continue
		}
		if deleted == nil {
			if seg.Deleted != nil {
				deleted = seg.Deleted.Clone()
			} else {
				deleted = roaring.New()
			}
		}
		for _, p := range postings {
			deleted.Add(p.DocID)
		}
	}
	if deleted != nil {
		seg.Deleted = deleted
	}
	seg.tombstones = len(tombstones)
	return nil
}

// Configure switches the reload policy. OnCommit starts a loop polling
// the directory every delay (at least MinPollInterval); Manual stops it.
func (r *IndexReader) Configure(p Policy, delay time.Duration) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	r.stopLoopLocked()
	r.policy = p
	r.delay = delay
	if p != OnCommit {
		return
	}
	if delay < MinPollInterval {
		delay = MinPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.pollLoop(ctx, delay, r.done)
	r.logger.Info("reader reload policy set", "policy", p.String(), "delay", delay)
}

func (r *IndexReader) pollLoop(ctx context.Context, delay time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			op, err := r.dir.Opstamp()
			if err != nil {
				if !errors.Is(err, apperrors.ErrIndexNotFound) {
					r.logger.Warn("polling commit opstamp failed, retrying", "error", err)
				}
				continue
			}
			if op <= r.current.Load().Opstamp {
				continue
			}
			if _, err := r.reload(ctx, "oncommit"); err != nil && ctx.Err() == nil {
				r.logger.Warn("background reload failed, retrying next tick", "error", err)
			}
		}
	}
}

func (r *IndexReader) stopLoopLocked() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
		r.done = nil
	}
}

// WaitForOpstamp blocks until a snapshot at or past opstamp is published
// or ctx ends. It does not trigger reloads itself.
func (r *IndexReader) WaitForOpstamp(ctx context.Context, opstamp uint64) (*Snapshot, error) {
	for {
		r.mu.Lock()
		ch := r.notify
		r.mu.Unlock()
		if snap := r.current.Load(); snap.Opstamp >= opstamp {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for opstamp %d: %w", apperrors.ErrTimeout, opstamp, ctx.Err())
		case <-ch:
		}
	}
}

// Close stops the poll loop and closes every segment reader. Snapshots
// must not be used afterwards, and later reloads fail with
// ErrReaderClosed.
func (r *IndexReader) Close() error {
	r.loopMu.Lock()
	r.stopLoopLocked()
	r.loopMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	var firstErr error
	for id, seg := range r.segments {
		if err := seg.Reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.segments, id)
	}
	return firstErr
}
