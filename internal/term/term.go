// Package term encodes (field, value) pairs into the byte keys stored in
// segment dictionaries. Keys of the same field sort in value order.
package term

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// KeyPrefixLen is the size of the big-endian field id that prefixes every
// term key.
const KeyPrefixLen = 4

// Term is a field id and the raw encoding of one value.
type Term struct {
	Field schema.Field
	Bytes []byte
}

func FromFieldText(f schema.Field, text string) Term {
	return Term{Field: f, Bytes: []byte(text)}
}

func FromFieldU64(f schema.Field, v uint64) Term {
	return Term{Field: f, Bytes: EncodeU64(v)}
}

func FromFieldI64(f schema.Field, v int64) Term {
	return Term{Field: f, Bytes: EncodeI64(v)}
}

func FromFieldF64(f schema.Field, v float64) Term {
	return Term{Field: f, Bytes: EncodeF64(v)}
}

func FromFieldDate(f schema.Field, t time.Time) Term {
	return Term{Field: f, Bytes: EncodeI64(document.NormalizeDate(t).UnixMicro())}
}

func FromFieldFacet(f schema.Field, facet document.Facet) Term {
	return Term{Field: f, Bytes: facet.Encoded()}
}

func FromFieldBytes(f schema.Field, b []byte) Term {
	return Term{Field: f, Bytes: append([]byte(nil), b...)}
}

// FromValue encodes a non-text value as a single term. Text values are
// encoded verbatim; callers that need analysed tokens run the tokenizer
// first.
func FromValue(f schema.Field, v document.Value) (Term, error) {
	switch v.Type() {
	case schema.Text:
		s, _ := v.Text()
		return FromFieldText(f, s), nil
	case schema.U64:
		u, _ := v.U64()
		return FromFieldU64(f, u), nil
	case schema.I64:
		i, _ := v.I64()
		return FromFieldI64(f, i), nil
	case schema.F64:
		x, _ := v.F64()
		return FromFieldF64(f, x), nil
	case schema.Date:
		d, _ := v.Date()
		return FromFieldDate(f, d), nil
	case schema.Facet:
		fc, _ := v.Facet()
		return FromFieldFacet(f, fc), nil
	case schema.Bytes:
		b, _ := v.Bytes()
		return FromFieldBytes(f, b), nil
	}
	return Term{}, fmt.Errorf("%w: cannot encode %s", apperrors.ErrTypeMismatch, v.Type())
}

// Key returns the dictionary key: the field id as 4 big-endian bytes
// followed by the value bytes.
func (t Term) Key() []byte {
	return AppendKey(make([]byte, 0, KeyPrefixLen+len(t.Bytes)), t.Field, t.Bytes)
}

// AppendKey appends the dictionary key of (f, value) to dst.
func AppendKey(dst []byte, f schema.Field, value []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(f))
	return append(dst, value...)
}

// FromKey splits a dictionary key back into a term.
func FromKey(key []byte) (Term, error) {
	if len(key) < KeyPrefixLen {
		return Term{}, fmt.Errorf("%w: term key too short", apperrors.ErrIO)
	}
	return Term{
		Field: schema.Field(binary.BigEndian.Uint32(key[:KeyPrefixLen])),
		Bytes: append([]byte(nil), key[KeyPrefixLen:]...),
	}, nil
}

func (t Term) Compare(other Term) int {
	if t.Field != other.Field {
		if t.Field < other.Field {
			return -1
		}
		return 1
	}
	return bytes.Compare(t.Bytes, other.Bytes)
}

func (t Term) Equal(other Term) bool {
	return t.Field == other.Field && bytes.Equal(t.Bytes, other.Bytes)
}

// String renders Term(field=0,bytes=[119, 105, 110, 116, 101, 114]).
func (t Term) String() string {
	var b strings.Builder
	b.WriteString("Term(field=")
	b.WriteString(strconv.FormatUint(uint64(t.Field), 10))
	b.WriteString(",bytes=[")
	for i, c := range t.Bytes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	b.WriteString("])")
	return b.String()
}

func EncodeU64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// EncodeI64 flips the sign bit so that negative values sort first.
func EncodeI64(v int64) []byte {
	return EncodeU64(uint64(v) ^ (1 << 63))
}

// EncodeF64 maps floats onto order-preserving unsigned integers.
func EncodeF64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return EncodeU64(bits)
}

func DecodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func DecodeI64(b []byte) int64 {
	return int64(DecodeU64(b) ^ (1 << 63))
}

func DecodeF64(b []byte) float64 {
	bits := DecodeU64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
