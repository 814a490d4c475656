// Package segment reads and writes immutable segment files.
//
// Layout:
//
//	header   64 bytes
//	postings msgpack posting lists, one per term, back to back
//	dict     msgpack []DictEntry sorted by term key
//	norms    msgpack map field -> per-doc token counts
//	stored   compressed block of msgpack [][]storedValue
//	footer   48 bytes, xxhash64 over dict, norms and stored
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x54495347
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 48
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	NormsSize   int64
	StoredSize  int64
	Compression Compression
}

func (h SegmentHeader) PostOffset() int64   { return int64(HeaderSize) }
func (h SegmentHeader) PostSize() int64     { return h.DictOffset - int64(HeaderSize) }
func (h SegmentHeader) NormsOffset() int64  { return h.DictOffset + h.DictSize }
func (h SegmentHeader) StoredOffset() int64 { return h.NormsOffset() + h.NormsSize }

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.NormsSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.StoredSize))
	b[56] = byte(h.Compression)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		TermCount:   binary.LittleEndian.Uint32(b[8:12]),
		DocCount:    binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(b[32:40])),
		NormsSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		StoredSize:  int64(binary.LittleEndian.Uint64(b[48:56])),
		Compression: Compression(b[56]),
	}
}

// DictEntry maps a term key to its postings offset, length, and document
// frequency in the segment file.
type DictEntry struct {
	Key        []byte `msgpack:"k"`
	PostOffset int64  `msgpack:"o"`
	PostLen    int    `msgpack:"l"`
	DocFreq    int    `msgpack:"d"`
}

// Writer serialises in-memory snapshots into segment files.
type Writer struct {
	dir         directory.Directory
	compression Compression
}

func NewWriter(dir directory.Directory, compression Compression) *Writer {
	return &Writer{dir: dir, compression: compression}
}

// Write encodes snap and stores it as <id>.seg. The directory makes the
// write atomic.
func (w *Writer) Write(id string, snap index.Snapshot) (string, error) {
	if snap.DocCount == 0 {
		return "", fmt.Errorf("%w: cannot write empty segment", apperrors.ErrInvalidArgument)
	}
	data, err := Encode(snap, w.compression)
	if err != nil {
		return "", err
	}
	name := id + directory.SegmentExt
	if err := w.dir.WriteFile(name, data); err != nil {
		return "", fmt.Errorf("writing segment %s: %w", name, err)
	}
	return name, nil
}

// Encode renders a snapshot in the segment file format.
func Encode(snap index.Snapshot, compression Compression) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))

	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		offset := int64(buf.Len() - HeaderSize)
		postingsData, err := msgpack.Marshal(entry.Postings)
		if err != nil {
			return nil, apperrors.IO(fmt.Sprintf("marshaling postings for key %x", entry.Key), err)
		}
		buf.Write(postingsData)
		dict = append(dict, DictEntry{
			Key:        entry.Key,
			PostOffset: offset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
	}

	dictStart := buf.Len()
	dictData, err := msgpack.Marshal(dict)
	if err != nil {
		return nil, apperrors.IO("marshaling dictionary", err)
	}
	buf.Write(dictData)

	norms := make(map[uint32][]uint32, len(snap.Norms))
	for field, col := range snap.Norms {
		norms[uint32(field)] = col
	}
	normsData, err := msgpack.Marshal(norms)
	if err != nil {
		return nil, apperrors.IO("marshaling field norms", err)
	}
	buf.Write(normsData)

	stored := make([][]storedValue, len(snap.Stored))
	for i, fvs := range snap.Stored {
		row := make([]storedValue, len(fvs))
		for j, fv := range fvs {
			row[j] = toStored(fv)
		}
		stored[i] = row
	}
	storedRaw, err := msgpack.Marshal(stored)
	if err != nil {
		return nil, apperrors.IO("marshaling stored fields", err)
	}
	storedData, err := compressBlock(storedRaw, compression)
	if err != nil {
		return nil, apperrors.IO("compressing stored fields", err)
	}
	buf.Write(storedData)

	h := xxhash.New()
	h.Write(dictData)
	h.Write(normsData)
	h.Write(storedData)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(footer[0:8], h.Sum64())
	binary.LittleEndian.PutUint32(footer[8:12], MagicBytes)
	binary.LittleEndian.PutUint32(footer[12:16], snap.DocCount)
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(len(storedRaw)))
	buf.Write(footer)

	out := buf.Bytes()
	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		TermCount:   uint32(len(dict)),
		DocCount:    snap.DocCount,
		CreatedAt:   time.Now().Unix(),
		DictOffset:  int64(dictStart),
		DictSize:    int64(len(dictData)),
		NormsSize:   int64(len(normsData)),
		StoredSize:  int64(len(storedData)),
		Compression: compression,
	}
	copy(out[:HeaderSize], header.encode())
	return out, nil
}
