package reader

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// DocAddress identifies a document inside one snapshot: the segment
// ordinal and the local doc id. Addresses are only meaningful for the
// snapshot that produced them.
type DocAddress struct {
	Segment int    `json:"segment"`
	Doc     uint32 `json:"doc"`
}

func (a DocAddress) String() string {
	return fmt.Sprintf("DocAddress(segment=%d, doc=%d)", a.Segment, a.Doc)
}

// SegmentSnapshot is one segment as seen by a snapshot, with the
// documents deleted as of that snapshot.
type SegmentSnapshot struct {
	Ord     int
	ID      string
	Opstamp uint64
	Reader  *segment.Reader
	Deleted *roaring.Bitmap

	// tombstones is how many tombstones of the meta Deleted reflects.
	tombstones int
}

func (s *SegmentSnapshot) IsDeleted(doc uint32) bool {
	return s.Deleted != nil && s.Deleted.Contains(doc)
}

// NumDocs is the number of live documents.
func (s *SegmentSnapshot) NumDocs() uint32 {
	n := s.Reader.NumDocs()
	if s.Deleted != nil {
		n -= uint32(s.Deleted.GetCardinality())
	}
	return n
}

// LiveDocs returns a bitmap of every non-deleted local doc id.
func (s *SegmentSnapshot) LiveDocs() *roaring.Bitmap {
	all := roaring.New()
	all.AddRange(0, uint64(s.Reader.NumDocs()))
	if s.Deleted != nil {
		all.AndNot(s.Deleted)
	}
	return all
}

// Snapshot is an immutable view over the committed segments at one
// opstamp. Counts are computed once.
type Snapshot struct {
	Schema   *schema.Schema
	Segments []*SegmentSnapshot
	Opstamp  uint64

	numDocs uint64
}

func newSnapshot(s *schema.Schema, segs []*SegmentSnapshot, opstamp uint64) *Snapshot {
	snap := &Snapshot{Schema: s, Segments: segs, Opstamp: opstamp}
	for _, seg := range segs {
		snap.numDocs += uint64(seg.NumDocs())
	}
	return snap
}

func (s *Snapshot) NumDocs() uint64 { return s.numDocs }

func (s *Snapshot) NumSegments() int { return len(s.Segments) }

// MaxDocs counts documents including deleted ones.
func (s *Snapshot) MaxDocs() uint64 {
	var n uint64
	for _, seg := range s.Segments {
		n += uint64(seg.Reader.NumDocs())
	}
	return n
}

// DocFreq sums the document frequency of a term key over all segments.
func (s *Snapshot) DocFreq(key []byte) uint64 {
	var n uint64
	for _, seg := range s.Segments {
		n += uint64(seg.Reader.DocFreq(key))
	}
	return n
}

// AvgFieldNorm is the mean token count of f over all documents.
func (s *Snapshot) AvgFieldNorm(f schema.Field) float64 {
	var tokens, docs uint64
	for _, seg := range s.Segments {
		tokens += seg.Reader.TotalFieldTokens(f)
		docs += uint64(seg.Reader.NumDocs())
	}
	if docs == 0 {
		return 0
	}
	return float64(tokens) / float64(docs)
}

// Doc loads the stored fields of the document at addr.
func (s *Snapshot) Doc(addr DocAddress) (*document.Document, error) {
	if addr.Segment < 0 || addr.Segment >= len(s.Segments) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, addr)
	}
	seg := s.Segments[addr.Segment]
	if seg.IsDeleted(addr.Doc) {
		return nil, fmt.Errorf("%w: %s is deleted", apperrors.ErrDocumentNotFound, addr)
	}
	return seg.Reader.Doc(s.Schema, addr.Doc)
}
