package document

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
)

// DateLayout is the rendering used for date values: RFC 3339 with up to
// microsecond precision.
const DateLayout = "2006-01-02T15:04:05.999999Z07:00"

// Value is a tagged union over the value types a field can hold. Its Type
// uses the schema's FieldType tags.
type Value struct {
	typ   schema.FieldType
	text  string
	u64   uint64
	i64   int64
	f64   float64
	date  time.Time
	facet Facet
	bytes []byte
}

func TextValue(s string) Value  { return Value{typ: schema.Text, text: s} }
func U64Value(v uint64) Value   { return Value{typ: schema.U64, u64: v} }
func I64Value(v int64) Value    { return Value{typ: schema.I64, i64: v} }
func F64Value(v float64) Value  { return Value{typ: schema.F64, f64: v} }
func FacetValue(f Facet) Value  { return Value{typ: schema.Facet, facet: f} }
func BytesValue(b []byte) Value { return Value{typ: schema.Bytes, bytes: append([]byte(nil), b...)} }

// DateValue normalises t to UTC with microsecond precision.
func DateValue(t time.Time) Value {
	return Value{typ: schema.Date, date: NormalizeDate(t)}
}

// NormalizeDate returns t in UTC truncated to microseconds.
func NormalizeDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (v Value) Type() schema.FieldType { return v.typ }

func (v Value) Text() (string, bool)    { return v.text, v.typ == schema.Text }
func (v Value) U64() (uint64, bool)     { return v.u64, v.typ == schema.U64 }
func (v Value) I64() (int64, bool)      { return v.i64, v.typ == schema.I64 }
func (v Value) F64() (float64, bool)    { return v.f64, v.typ == schema.F64 }
func (v Value) Date() (time.Time, bool) { return v.date, v.typ == schema.Date }
func (v Value) Facet() (Facet, bool)    { return v.facet, v.typ == schema.Facet }
func (v Value) Bytes() ([]byte, bool)   { return v.bytes, v.typ == schema.Bytes }

// Interface returns the value as a plain Go value: string, uint64, int64,
// float64, time.Time, Facet or []byte.
func (v Value) Interface() any {
	switch v.typ {
	case schema.Text:
		return v.text
	case schema.U64:
		return v.u64
	case schema.I64:
		return v.i64
	case schema.F64:
		return v.f64
	case schema.Date:
		return v.date
	case schema.Facet:
		return v.facet
	case schema.Bytes:
		return v.bytes
	}
	return nil
}

func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case schema.Text:
		return v.text == other.text
	case schema.U64:
		return v.u64 == other.u64
	case schema.I64:
		return v.i64 == other.i64
	case schema.F64:
		return v.f64 == other.f64
	case schema.Date:
		return v.date.Equal(other.date)
	case schema.Facet:
		return v.facet.Equal(other.facet)
	case schema.Bytes:
		return bytes.Equal(v.bytes, other.bytes)
	}
	return false
}

func (v Value) String() string {
	switch v.typ {
	case schema.Text:
		return v.text
	case schema.U64:
		return strconv.FormatUint(v.u64, 10)
	case schema.I64:
		return strconv.FormatInt(v.i64, 10)
	case schema.F64:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case schema.Date:
		return v.date.Format(DateLayout)
	case schema.Facet:
		return v.facet.ToPathStr()
	case schema.Bytes:
		parts := make([]string, len(v.bytes))
		for i, b := range v.bytes {
			parts[i] = strconv.Itoa(int(b))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("Value(%d)", v.typ)
}
