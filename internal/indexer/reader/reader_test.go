package reader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	_, err := b.AddTextField("title", schema.FieldOptions{Stored: true})
	require.NoError(t, err)
	return b.Build()
}

// commitDocs writes titles as one segment and publishes it together with
// the given delete terms.
func commitDocs(t *testing.T, dir directory.Directory, s *schema.Schema, titles []string, deletes ...string) uint64 {
	t.Helper()
	var segs []directory.SegmentMeta
	if len(titles) > 0 {
		m := index.NewMemoryIndex()
		for _, title := range titles {
			fvs, err := document.New().AddText("title", title).Validate(s)
			require.NoError(t, err)
			a, err := index.Analyze(s, fvs)
			require.NoError(t, err)
			m.AddDocument(a)
		}
		id := uuid.NewString()
		_, err := segment.NewWriter(dir, segment.CompressionZSTD).Write(id, m.Snapshot())
		require.NoError(t, err)
		segs = append(segs, directory.SegmentMeta{ID: id, NumDocs: uint32(len(titles))})
	}
	meta, err := dir.CommitMeta(func(m *directory.Meta) error {
		m.Opstamp++
		m.Schema = s.Fields()
		for _, sm := range segs {
			sm.Opstamp = m.Opstamp
			m.Segments = append(m.Segments, sm)
		}
		for _, d := range deletes {
			m.Tombstones = append(m.Tombstones, directory.Tombstone{Field: 0, Bytes: []byte(d), Opstamp: m.Opstamp})
		}
		return nil
	})
	require.NoError(t, err)
	return meta.Opstamp
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Manual, "Manual": Manual, "ONCOMMIT": OnCommit, "on_commit": OnCommit} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePolicy("sometimes")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestNewOnEmptyDirectory(t *testing.T) {
	r, err := New(directory.NewRAMDirectory(), testSchema(t))
	require.NoError(t, err)
	defer r.Close()

	snap := r.Snapshot()
	assert.Zero(t, snap.NumDocs())
	assert.Zero(t, snap.NumSegments())
	assert.Zero(t, snap.Opstamp)
}

func TestManualReload(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"winter is coming", "summer nights"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()
	assert.EqualValues(t, 2, r.Snapshot().NumDocs())

	commitDocs(t, dir, s, []string{"autumn leaves"})
	assert.EqualValues(t, 2, r.Snapshot().NumDocs(), "manual policy must not pick up commits by itself")

	snap, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, snap.NumDocs())
	assert.Equal(t, 2, snap.NumSegments())
	assert.Same(t, snap, r.Snapshot())
}

func TestReloadIsIdempotent(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"one", "two"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Reload(context.Background())
	require.NoError(t, err)
	second, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, first.NumDocs(), second.NumDocs())
}

func TestReloadReusesSegmentReaders(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"one"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()
	before := r.Snapshot().Segments[0].Reader

	commitDocs(t, dir, s, []string{"two"})
	snap, err := r.Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Segments, 2)
	assert.Same(t, before, snap.Segments[0].Reader)
	assert.Equal(t, 1, snap.Segments[1].Ord)
}

func TestTombstonesDeleteDocuments(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"frankenstein", "the modern prometheus", "frankenstein again"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()
	old := r.Snapshot()

	commitDocs(t, dir, s, nil, "frankenstein")
	snap, err := r.Reload(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, snap.NumDocs())
	assert.EqualValues(t, 3, snap.MaxDocs())
	seg := snap.Segments[0]
	assert.True(t, seg.IsDeleted(0))
	assert.False(t, seg.IsDeleted(1))
	assert.True(t, seg.IsDeleted(2))
	assert.Equal(t, []uint32{1}, seg.LiveDocs().ToArray())

	_, err = snap.Doc(DocAddress{Segment: 0, Doc: 0})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	doc, err := snap.Doc(DocAddress{Segment: 0, Doc: 1})
	require.NoError(t, err)
	assert.Equal(t, "Document(title=[the modern prometheus])", doc.String())

	assert.EqualValues(t, 3, old.NumDocs(), "published snapshots are immutable")
	assert.False(t, old.Segments[0].IsDeleted(0))
}

func TestTombstonesSkipLaterSegments(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"ghost"}, "ghost")
	commitDocs(t, dir, s, []string{"ghost"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()

	snap := r.Snapshot()
	assert.True(t, snap.Segments[0].IsDeleted(0), "same-commit delete applies")
	assert.False(t, snap.Segments[1].IsDeleted(0), "later segment is not affected")
	assert.EqualValues(t, 1, snap.NumDocs())
}

func TestSnapshotStatistics(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	commitDocs(t, dir, s, []string{"winter winter", "winter is here"})
	commitDocs(t, dir, s, []string{"summer"})

	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()

	snap := r.Snapshot()
	f, err := s.Field("title")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.DocFreq(term.FromFieldText(f, "winter").Key()))
	assert.EqualValues(t, 0, snap.DocFreq(term.FromFieldText(f, "spring").Key()))
	assert.InDelta(t, 2.0, snap.AvgFieldNorm(f), 1e-9)

	_, err = snap.Doc(DocAddress{Segment: 5, Doc: 0})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestOnCommitPolicy(t *testing.T) {
	s := testSchema(t)
	dir := directory.NewRAMDirectory()
	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()

	r.Configure(OnCommit, 5*time.Millisecond)
	p, delay := r.Policy()
	assert.Equal(t, OnCommit, p)
	assert.Equal(t, 5*time.Millisecond, delay)

	op := commitDocs(t, dir, s, []string{"fresh"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := r.WaitForOpstamp(ctx, op)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.NumDocs())

	r.Configure(Manual, 0)
	commitDocs(t, dir, s, []string{"stale"})
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, r.Snapshot().NumDocs())
}

func TestWaitForOpstampTimesOut(t *testing.T) {
	r, err := New(directory.NewRAMDirectory(), testSchema(t))
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.WaitForOpstamp(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// trackingDirectory counts open segment files and can fail opens of one
// file or hold LoadMeta until gate is closed.
type trackingDirectory struct {
	*directory.RAMDirectory

	mu       sync.Mutex
	open     int
	failOpen string
	gate     chan struct{}
	entered  chan struct{}
}

type trackedFile struct {
	directory.File
	dir  *trackingDirectory
	once sync.Once
}

func (f *trackedFile) Close() error {
	f.once.Do(func() {
		f.dir.mu.Lock()
		f.dir.open--
		f.dir.mu.Unlock()
	})
	return f.File.Close()
}

func (d *trackingDirectory) Open(name string) (directory.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name == d.failOpen {
		return nil, errors.New("bad sector")
	}
	f, err := d.RAMDirectory.Open(name)
	if err != nil {
		return nil, err
	}
	d.open++
	return &trackedFile{File: f, dir: d}, nil
}

func (d *trackingDirectory) LoadMeta() (*directory.Meta, error) {
	d.mu.Lock()
	gate, entered := d.gate, d.entered
	d.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return d.RAMDirectory.LoadMeta()
}

func (d *trackingDirectory) openFiles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func segmentFile(t *testing.T, dir directory.Directory, i int) string {
	t.Helper()
	meta, err := dir.LoadMeta()
	require.NoError(t, err)
	return meta.Segments[i].FileName()
}

func TestFailedReloadClosesNewlyOpenedSegments(t *testing.T) {
	s := testSchema(t)
	dir := &trackingDirectory{RAMDirectory: directory.NewRAMDirectory()}
	commitDocs(t, dir, s, []string{"one"})
	commitDocs(t, dir, s, []string{"two"})
	dir.failOpen = segmentFile(t, dir, 1)

	_, err := New(dir, s)
	require.Error(t, err)
	assert.Zero(t, dir.openFiles())

	dir.failOpen = ""
	r, err := New(dir, s)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, dir.openFiles())

	commitDocs(t, dir, s, []string{"three"})
	commitDocs(t, dir, s, []string{"four"})
	dir.failOpen = segmentFile(t, dir, 3)
	_, err = r.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, dir.openFiles(), "cached readers stay open, new ones are closed")
	assert.EqualValues(t, 2, r.Snapshot().NumDocs())
}

func TestLoadAfterCloseOpensNothing(t *testing.T) {
	s := testSchema(t)
	dir := &trackingDirectory{RAMDirectory: directory.NewRAMDirectory()}
	commitDocs(t, dir, s, []string{"one"})
	r, err := New(dir, s)
	require.NoError(t, err)
	commitDocs(t, dir, s, []string{"two"})

	dir.mu.Lock()
	dir.gate, dir.entered = make(chan struct{}), make(chan struct{}, 4)
	dir.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.Reload(ctx)
		errc <- err
	}()
	<-dir.entered
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	require.NoError(t, r.Close())
	close(dir.gate)

	_, err = r.Reload(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrReaderClosed)
	assert.Zero(t, dir.openFiles())
}
