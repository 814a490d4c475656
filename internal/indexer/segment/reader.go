package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Reader serves lookups against one segment file. It is safe for
// concurrent use.
type Reader struct {
	file        directory.File
	name        string
	header      SegmentHeader
	dict        []DictEntry
	norms       map[uint32][]uint32
	totalTokens map[uint32]uint64
	storedRaw   uint64

	storedOnce sync.Once
	stored     [][]storedValue
	storedErr  error
}

// Open validates the header, footer and checksum of a segment file and
// loads its dictionary and field norms. The reader owns f.
func Open(f directory.File, name string) (*Reader, error) {
	r, err := open(f, name)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// OpenSegment opens <name> in dir.
func OpenSegment(dir directory.Directory, name string) (*Reader, error) {
	f, err := dir.Open(name)
	if err != nil {
		return nil, err
	}
	return Open(f, name)
}

func open(f directory.File, name string) (*Reader, error) {
	size := f.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: segment %s truncated", apperrors.ErrIO, name)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, apperrors.IO("reading segment header", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: segment %s has bad magic bytes %x", apperrors.ErrIO, name, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: segment %s has unsupported version %d", apperrors.ErrIO, name, header.Version)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, apperrors.IO("reading segment footer", err)
	}
	if binary.LittleEndian.Uint32(footer[8:12]) != MagicBytes {
		return nil, fmt.Errorf("%w: segment %s has a bad footer", apperrors.ErrIO, name)
	}
	if header.StoredOffset()+header.StoredSize != size-int64(FooterSize) {
		return nil, fmt.Errorf("%w: segment %s region sizes disagree with file size", apperrors.ErrIO, name)
	}

	tail := make([]byte, header.DictSize+header.NormsSize+header.StoredSize)
	if _, err := f.ReadAt(tail, header.DictOffset); err != nil {
		return nil, apperrors.IO("reading segment dictionary", err)
	}
	if xxhash.Sum64(tail) != binary.LittleEndian.Uint64(footer[0:8]) {
		return nil, fmt.Errorf("%w: segment %s checksum mismatch", apperrors.ErrIO, name)
	}

	dictBytes := tail[:header.DictSize]
	normsBytes := tail[header.DictSize : header.DictSize+header.NormsSize]
	var dict []DictEntry
	if err := msgpack.Unmarshal(dictBytes, &dict); err != nil {
		return nil, apperrors.IO("parsing dictionary", err)
	}
	var norms map[uint32][]uint32
	if err := msgpack.Unmarshal(normsBytes, &norms); err != nil {
		return nil, apperrors.IO("parsing field norms", err)
	}
	totals := make(map[uint32]uint64, len(norms))
	for field, col := range norms {
		var sum uint64
		for _, n := range col {
			sum += uint64(n)
		}
		totals[field] = sum
	}
	return &Reader{
		file:        f,
		name:        name,
		header:      header,
		dict:        dict,
		norms:       norms,
		totalTokens: totals,
		storedRaw:   binary.LittleEndian.Uint64(footer[24:32]),
	}, nil
}

func (r *Reader) Name() string { return r.name }

func (r *Reader) Header() SegmentHeader { return r.header }

func (r *Reader) lookup(key []byte) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return bytes.Compare(r.dict[i].Key, key) >= 0
	})
	if idx >= len(r.dict) || !bytes.Equal(r.dict[idx].Key, key) {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Postings returns the posting list of a term key, or nil when the term
// does not occur in this segment.
func (r *Reader) Postings(key []byte) (index.PostingList, error) {
	entry, ok := r.lookup(key)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset()+entry.PostOffset); err != nil {
		return nil, apperrors.IO("reading postings", err)
	}
	var postings index.PostingList
	if err := msgpack.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, apperrors.IO("parsing postings", err)
	}
	return postings, nil
}

// DocFreq is the number of documents in this segment containing the term.
func (r *Reader) DocFreq(key []byte) int {
	entry, ok := r.lookup(key)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Keys returns the term keys starting with prefix, in order.
func (r *Reader) Keys(prefix []byte) [][]byte {
	start := sort.Search(len(r.dict), func(i int) bool {
		return bytes.Compare(r.dict[i].Key, prefix) >= 0
	})
	var out [][]byte
	for i := start; i < len(r.dict) && bytes.HasPrefix(r.dict[i].Key, prefix); i++ {
		out = append(out, r.dict[i].Key)
	}
	return out
}

func (r *Reader) NumTerms() int { return len(r.dict) }

func (r *Reader) NumDocs() uint32 { return r.header.DocCount }

// FieldNorm is the number of tokens field f holds in document doc.
func (r *Reader) FieldNorm(f schema.Field, doc uint32) uint32 {
	col := r.norms[uint32(f)]
	if int(doc) >= len(col) {
		return 0
	}
	return col[doc]
}

// TotalFieldTokens sums FieldNorm over every document of the segment.
func (r *Reader) TotalFieldTokens(f schema.Field) uint64 {
	return r.totalTokens[uint32(f)]
}

// AvgFieldNorm is the mean token count of f per document.
func (r *Reader) AvgFieldNorm(f schema.Field) float64 {
	if r.header.DocCount == 0 {
		return 0
	}
	return float64(r.totalTokens[uint32(f)]) / float64(r.header.DocCount)
}

func (r *Reader) loadStored() {
	raw := make([]byte, r.header.StoredSize)
	if _, err := r.file.ReadAt(raw, r.header.StoredOffset()); err != nil {
		r.storedErr = apperrors.IO("reading stored fields", err)
		return
	}
	data, err := decompressBlock(raw, r.header.Compression)
	if err != nil {
		r.storedErr = apperrors.IO("decompressing stored fields", err)
		return
	}
	if uint64(len(data)) != r.storedRaw {
		r.storedErr = fmt.Errorf("%w: stored block size mismatch", apperrors.ErrIO)
		return
	}
	if err := msgpack.Unmarshal(data, &r.stored); err != nil {
		r.storedErr = apperrors.IO("parsing stored fields", err)
	}
}

// Doc returns the stored fields of a local document. Field names are
// resolved against s.
func (r *Reader) Doc(s *schema.Schema, doc uint32) (*document.Document, error) {
	if doc >= r.header.DocCount {
		return nil, fmt.Errorf("%w: doc %d in segment %s", apperrors.ErrDocumentNotFound, doc, r.name)
	}
	r.storedOnce.Do(r.loadStored)
	if r.storedErr != nil {
		return nil, r.storedErr
	}
	out := document.New()
	if int(doc) >= len(r.stored) {
		return out, nil
	}
	for _, sv := range r.stored[doc] {
		name := s.FieldName(schema.Field(sv.Field))
		if name == "" {
			return nil, fmt.Errorf("%w: stored field %d not in schema", apperrors.ErrSchemaMismatch, sv.Field)
		}
		v, err := sv.value()
		if err != nil {
			return nil, err
		}
		out.AddValue(name, v)
	}
	return out, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
