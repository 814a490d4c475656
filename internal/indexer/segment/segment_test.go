package segment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	_, err := b.AddTextField("title", schema.FieldOptions{Stored: true})
	require.NoError(t, err)
	_, err = b.AddTextField("body", schema.FieldOptions{})
	require.NoError(t, err)
	_, err = b.AddDateField("published", schema.FieldOptions{Stored: true, Indexed: true})
	require.NoError(t, err)
	_, err = b.AddFacetField("category", schema.FieldOptions{Stored: true})
	require.NoError(t, err)
	return b.Build()
}

func buildSnapshot(t *testing.T, s *schema.Schema, docs ...*document.Document) index.Snapshot {
	t.Helper()
	m := index.NewMemoryIndex()
	for _, doc := range docs {
		fvs, err := doc.Validate(s)
		require.NoError(t, err)
		a, err := index.Analyze(s, fvs)
		require.NoError(t, err)
		m.AddDocument(a)
	}
	return m.Snapshot()
}

func sampleDocs(t *testing.T) []*document.Document {
	facet, err := document.FacetFromString("/books/novella")
	require.NoError(t, err)
	return []*document.Document{
		document.New().
			AddText("title", "The Old Man and the Sea").
			AddText("body", "He was an old man who fished alone").
			AddDate("published", time.Date(1952, 9, 1, 0, 0, 0, 0, time.UTC)),
		document.New().
			AddText("title", "Of Mice and Men").
			AddText("body", strings.Repeat("the water is warm too ", 20)).
			AddFacet("category", facet),
	}
}

func TestWriteAndRead(t *testing.T) {
	s := testSchema(t)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			dir := directory.NewRAMDirectory()
			name, err := NewWriter(dir, c).Write("seg1", buildSnapshot(t, s, sampleDocs(t)...))
			require.NoError(t, err)
			assert.Equal(t, "seg1.seg", name)

			r, err := OpenSegment(dir, name)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, uint32(2), r.NumDocs())
			assert.Equal(t, c, r.Header().Compression)

			postings, err := r.Postings(term.FromFieldText(0, "the").Key())
			require.NoError(t, err)
			require.Len(t, postings, 1)
			assert.Equal(t, uint32(0), postings[0].DocID)
			assert.Equal(t, uint32(2), postings[0].Frequency)
			assert.Equal(t, []uint32{0, 4}, postings[0].Positions)

			assert.Equal(t, 2, r.DocFreq(term.FromFieldText(0, "and").Key()))
			assert.Equal(t, 0, r.DocFreq(term.FromFieldText(0, "whale").Key()))
			missing, err := r.Postings(term.FromFieldText(0, "whale").Key())
			require.NoError(t, err)
			assert.Nil(t, missing)

			assert.Equal(t, uint32(6), r.FieldNorm(0, 0))
			assert.Equal(t, uint32(4), r.FieldNorm(0, 1))
			assert.Equal(t, uint64(10), r.TotalFieldTokens(0))
			assert.InDelta(t, 5.0, r.AvgFieldNorm(0), 1e-9)

			doc, err := r.Doc(s, 0)
			require.NoError(t, err)
			assert.Equal(t, "Document(title=[The Old Man and the Sea],published=[1952-09-01T00:00:00Z])", doc.String())
			doc, err = r.Doc(s, 1)
			require.NoError(t, err)
			assert.Equal(t, "Document(title=[Of Mice and Men],category=[/books/novella])", doc.String())

			_, err = r.Doc(s, 2)
			assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

			keys := r.Keys(term.AppendKey(nil, 3, nil))
			assert.Len(t, keys, 2, "facet and its ancestor")
		})
	}
}

func TestWriteEmptySegment(t *testing.T) {
	_, err := NewWriter(directory.NewRAMDirectory(), CompressionZSTD).Write("empty", index.Snapshot{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestOpenRejectsCorruption(t *testing.T) {
	s := testSchema(t)
	data, err := Encode(buildSnapshot(t, s, sampleDocs(t)...), CompressionZSTD)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:HeaderSize] }},
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xff; return b }},
		{"flipped dictionary byte", func(b []byte) []byte {
			h := decodeHeader(b)
			b[h.DictOffset+1] ^= 0xff
			return b
		}},
		{"bad footer", func(b []byte) []byte { b[len(b)-FooterSize+8] ^= 0xff; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := directory.NewRAMDirectory()
			corrupt := tt.mutate(append([]byte(nil), data...))
			require.NoError(t, dir.WriteFile("bad.seg", corrupt))
			_, err := OpenSegment(dir, "bad.seg")
			assert.ErrorIs(t, err, apperrors.ErrIO)
		})
	}
}

func TestOnDisk(t *testing.T) {
	s := testSchema(t)
	dir, err := directory.OpenFS(t.TempDir())
	require.NoError(t, err)
	name, err := NewWriter(dir, CompressionLZ4).Write("disk", buildSnapshot(t, s, sampleDocs(t)...))
	require.NoError(t, err)

	r, err := OpenSegment(dir, name)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint32(2), r.NumDocs())
	assert.Positive(t, r.NumTerms())
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)
	c, err = ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)
	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
