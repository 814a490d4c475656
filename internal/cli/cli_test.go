package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
)

const testSchemaYAML = `fields:
  - name: title
    type: text
    stored: true
  - name: body
    type: text
  - name: year
    type: u64
    stored: true
    indexed: true
`

type recordingPublisher struct {
	topic   string
	batches [][]kafka.Event
	closed  bool
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type harness struct {
	t      *testing.T
	dir    string
	index  string
	schema string
	pub    *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:      t,
		dir:    dir,
		index:  filepath.Join(dir, "index"),
		schema: filepath.Join(dir, "schema.yaml"),
		pub:    &recordingPublisher{},
	}
	h.write("schema.yaml", testSchemaYAML)
	return h
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	a := &app{newPublisher: func(_ config.KafkaConfig, topic string) eventSink {
		h.pub.topic = topic
		return h.pub
	}}
	cmd := newRootCommand(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--index", h.index, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err)
	return out
}

func (h *harness) seed() {
	h.t.Helper()
	h.write("docs/a.json", `{"title": "The Old Man and the Sea", "body": "He was an old man who fished alone", "year": 1952}`)
	h.write("docs/b.ndjson", `{"title": "Of Mice and Men", "body": "A few miles south of Soledad", "year": 1937}

{"title": "Frankenstein", "body": "You will rejoice to hear", "year": 1818}
`)
	h.write("docs/skip/c.json", `{"title": "Excluded"}`)
	h.write("docs/notes.txt", `not json`)
	h.mustRun("init", "--schema", h.schema)
	h.mustRun("index", filepath.Join(h.dir, "docs"), "--quiet", "--exclude", "skip/**")
}

func searchJSON(t *testing.T, h *harness, q string) []searchHit {
	t.Helper()
	out := h.mustRun("search", "-q", q, "--json")
	var hits []searchHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	return hits
}

func TestInitRefusesExistingIndex(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("init", "--schema", h.schema)
	assert.Contains(t, out, "Created index")

	_, err := h.run("init", "--schema", h.schema)
	assert.ErrorIs(t, err, apperrors.ErrIndexExists)
}

func TestInitRequiresSchema(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("init")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestIndexAndSearch(t *testing.T) {
	h := newHarness(t)
	h.seed()

	hits := searchJSON(t, h, "old man sea")
	require.NotEmpty(t, hits)
	assert.Equal(t, []any{"The Old Man and the Sea"}, hits[0].Doc["title"])

	assert.Empty(t, searchJSON(t, h, "excluded"))
	assert.Len(t, searchJSON(t, h, "*"), 3)

	out := h.mustRun("search", "-q", "title:men", "--explain")
	assert.Contains(t, out, "Parsed: Query(")
	assert.Contains(t, out, "1 of 1 matching documents (Searcher(num_docs=3, num_segments=1))")
}

func TestIndexCommitEvery(t *testing.T) {
	h := newHarness(t)
	h.write("docs/b.ndjson", `{"title": "a"}
{"title": "b"}
{"title": "c"}
`)
	h.mustRun("init", "--schema", h.schema)
	out := h.mustRun("index", filepath.Join(h.dir, "docs"), "--quiet", "--commit-every", "2")
	assert.Contains(t, out, "Commits:   2 (opstamp 2)")
}

func TestIndexSkipsInvalidDocuments(t *testing.T) {
	h := newHarness(t)
	h.write("docs/b.ndjson", `{"title": "good"}
{"author": "unknown field"}
{"title":
`)
	h.mustRun("init", "--schema", h.schema)
	out := h.mustRun("index", filepath.Join(h.dir, "docs"), "--quiet")
	assert.Contains(t, out, "Documents: 1")
	assert.Contains(t, out, "Skipped:   2")

	_, err := h.run("index", filepath.Join(h.dir, "docs"), "--quiet", "--strict")
	assert.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
}

func TestIndexCreatesIndexWithSchema(t *testing.T) {
	h := newHarness(t)
	docs := h.write("books.json", `[{"title": "one"}, {"title": "two"}]`)
	out := h.mustRun("index", docs, "--quiet", "--schema", h.schema)
	assert.Contains(t, out, "Documents: 2")
}

func TestCommandsNeedAnIndex(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("search", "-q", "x")
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.seed()

	out := h.mustRun("delete", "--field", "year", "--value", "1818")
	assert.Contains(t, out, "opstamp 2")
	assert.Empty(t, searchJSON(t, h, "frankenstein"))
	assert.Len(t, searchJSON(t, h, "*"), 2)

	_, err := h.run("delete", "--field", "bod", "--value", "x")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestInspect(t *testing.T) {
	h := newHarness(t)
	h.seed()
	h.mustRun("delete", "--field", "title", "--value", "frankenstein")

	out := h.mustRun("inspect", "--json")
	var report inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint64(2), report.Opstamp)
	assert.Equal(t, uint64(2), report.NumDocs)
	assert.Equal(t, 1, report.Tombstones)
	require.Len(t, report.Segments, 1)
	assert.Equal(t, uint32(3), report.Segments[0].MaxDocs)
	assert.Equal(t, uint32(2), report.Segments[0].LiveDocs)
	assert.Contains(t, report.Schema, "name: title")

	out = h.mustRun("inspect")
	assert.Contains(t, out, "Documents:  2")

	_, err := h.run("inspect", "--commits", "5")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestPublish(t *testing.T) {
	h := newHarness(t)
	h.write("docs/b.ndjson", `{"title": "a"}
{"title": "b"}
{"title": "c"}
`)
	out := h.mustRun("publish", filepath.Join(h.dir, "docs"), "--batch", "2", "--delete", "year=1818")
	assert.Contains(t, out, "Published 4 events")
	assert.Equal(t, "textindex-documents", h.pub.topic)
	assert.True(t, h.pub.closed)
	require.Len(t, h.pub.batches, 2)

	first := h.pub.batches[0][0]
	assert.True(t, strings.HasSuffix(first.Key, "b.ndjson:1"))
	ev := first.Value.(consumer.IngestEvent)
	assert.Equal(t, consumer.OpAdd, ev.Op)
	assert.JSONEq(t, `{"title": "a"}`, string(ev.Document))

	last := h.pub.batches[1][1].Value.(consumer.IngestEvent)
	assert.Equal(t, consumer.IngestEvent{Op: consumer.OpDelete, Field: "year", Value: "1818"}, last)
}

func TestPublishRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("publish")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.run("publish", "--delete", "year")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	bad := h.write("bad.ndjson", "{oops\n")
	_, err = h.run("publish", bad)
	assert.ErrorIs(t, err, apperrors.ErrMalformedJSON)
}

func TestWalkerGlobs(t *testing.T) {
	h := newHarness(t)
	h.write("in/a.json", "{}")
	h.write("in/deep/b.ndjson", "{}")
	h.write("in/deep/c.txt", "")
	h.write("in/vendor/d.json", "{}")

	files, err := newWalker([]string{"**/*.json", "**/*.ndjson"}, []string{"vendor/**"}).walk([]string{filepath.Join(h.dir, "in")})
	require.NoError(t, err)
	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(filepath.Join(h.dir, "in"), f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.json", "deep/b.ndjson"}, rel)
}
