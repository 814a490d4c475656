// Package directory stores segment files and the commit metadata of an
// index. A commit is published by a single CommitMeta call, so readers
// either see all of a commit or none of it.
package directory

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// MetaVersion is the current encoding version of Meta.
const MetaVersion = 1

// SegmentExt is the file extension of segment files.
const SegmentExt = ".seg"

// File is a read-only handle on a stored file.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Directory abstracts where an index lives.
type Directory interface {
	// WriteFile stores data under name atomically.
	WriteFile(name string, data []byte) error
	Open(name string) (File, error)
	Remove(name string) error
	List() ([]string, error)

	HasMeta() (bool, error)
	LoadMeta() (*Meta, error)
	// Opstamp returns the opstamp of the last published commit.
	Opstamp() (uint64, error)
	// CommitMeta applies fn to a copy of the current metadata and
	// publishes the result. Nothing is published when fn fails.
	CommitMeta(fn func(*Meta) error) (*Meta, error)

	Close() error
	String() string
}

// SegmentMeta records one published segment.
type SegmentMeta struct {
	ID      string `msgpack:"id"`
	NumDocs uint32 `msgpack:"n"`
	Opstamp uint64 `msgpack:"o"`
}

// FileName is the name of the segment file.
func (s SegmentMeta) FileName() string {
	return s.ID + SegmentExt
}

// Tombstone is a delete-by-term. It applies to every segment whose
// opstamp is not greater than its own.
type Tombstone struct {
	Field   schema.Field `msgpack:"f"`
	Bytes   []byte       `msgpack:"b"`
	Opstamp uint64       `msgpack:"o"`
}

// Meta is the durable state of an index.
type Meta struct {
	Version    int                 `msgpack:"v"`
	Opstamp    uint64              `msgpack:"op"`
	Schema     []schema.FieldEntry `msgpack:"schema"`
	Segments   []SegmentMeta       `msgpack:"segs"`
	Tombstones []Tombstone         `msgpack:"tomb,omitempty"`
}

// NumDocs sums the document counts of all segments, tombstones ignored.
func (m *Meta) NumDocs() uint64 {
	var n uint64
	for _, s := range m.Segments {
		n += uint64(s.NumDocs)
	}
	return n
}

// Clone returns a deep copy.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return &Meta{Version: MetaVersion}
	}
	out := &Meta{
		Version:    m.Version,
		Opstamp:    m.Opstamp,
		Schema:     append([]schema.FieldEntry(nil), m.Schema...),
		Segments:   append([]SegmentMeta(nil), m.Segments...),
		Tombstones: make([]Tombstone, len(m.Tombstones)),
	}
	for i, t := range m.Tombstones {
		out.Tombstones[i] = Tombstone{Field: t.Field, Bytes: append([]byte(nil), t.Bytes...), Opstamp: t.Opstamp}
	}
	return out
}

// LoadSchema rebuilds the schema persisted in m.
func (m *Meta) LoadSchema() (*schema.Schema, error) {
	s, err := schema.FromEntries(m.Schema)
	if err != nil {
		return nil, fmt.Errorf("decoding stored schema: %w", err)
	}
	return s, nil
}

func encodeMeta(m *Meta) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, apperrors.IO("encoding index meta", err)
	}
	return data, nil
}

func decodeMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, apperrors.IO("decoding index meta", err)
	}
	if m.Version > MetaVersion {
		return nil, fmt.Errorf("%w: index meta version %d is newer than supported %d",
			apperrors.ErrIO, m.Version, MetaVersion)
	}
	return &m, nil
}
