// Package document holds schema-agnostic documents: an ordered multimap
// from field name to typed values. Documents are validated against a
// schema only when they reach a writer or a schema-aware decoder.
package document

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

type fieldValues struct {
	name   string
	values []Value
}

// Document is an ordered field name to values multimap. Fields keep the
// order in which they were first added; values keep insertion order.
type Document struct {
	fields []fieldValues
	pos    map[string]int
}

func New() *Document {
	return &Document{pos: make(map[string]int)}
}

// AddValue appends v to the named field.
func (d *Document) AddValue(name string, v Value) *Document {
	if d.pos == nil {
		d.pos = make(map[string]int)
	}
	i, ok := d.pos[name]
	if !ok {
		i = len(d.fields)
		d.pos[name] = i
		d.fields = append(d.fields, fieldValues{name: name})
	}
	d.fields[i].values = append(d.fields[i].values, v)
	return d
}

func (d *Document) AddText(name, text string) *Document        { return d.AddValue(name, TextValue(text)) }
func (d *Document) AddU64(name string, v uint64) *Document     { return d.AddValue(name, U64Value(v)) }
func (d *Document) AddI64(name string, v int64) *Document      { return d.AddValue(name, I64Value(v)) }
func (d *Document) AddF64(name string, v float64) *Document    { return d.AddValue(name, F64Value(v)) }
func (d *Document) AddDate(name string, t time.Time) *Document { return d.AddValue(name, DateValue(t)) }
func (d *Document) AddFacet(name string, f Facet) *Document    { return d.AddValue(name, FacetValue(f)) }
func (d *Document) AddBytes(name string, b []byte) *Document   { return d.AddValue(name, BytesValue(b)) }

// Get returns the values of a field in insertion order. Absent fields
// yield nil.
func (d *Document) Get(name string) []Value {
	i, ok := d.pos[name]
	if !ok {
		return nil
	}
	out := make([]Value, len(d.fields[i].values))
	copy(out, d.fields[i].values)
	return out
}

// GetFirst returns the first value of a field, failing when the field has
// no values.
func (d *Document) GetFirst(name string) (Value, error) {
	i, ok := d.pos[name]
	if !ok || len(d.fields[i].values) == 0 {
		return Value{}, fmt.Errorf("%w: no value for %q", apperrors.ErrUnknownField, name)
	}
	return d.fields[i].values[0], nil
}

// FieldNames lists the fields that have at least one value, in the order
// they were first added.
func (d *Document) FieldNames() []string {
	names := make([]string, 0, len(d.fields))
	for _, f := range d.fields {
		if len(f.values) > 0 {
			names = append(names, f.name)
		}
	}
	return names
}

// Len is the number of fields with at least one value.
func (d *Document) Len() int {
	return len(d.FieldNames())
}

func (d *Document) IsEmpty() bool { return d.Len() == 0 }

// ToMap returns every field as an array of plain values, even single
// valued ones.
func (d *Document) ToMap() map[string][]any {
	out := make(map[string][]any, len(d.fields))
	for _, f := range d.fields {
		if len(f.values) == 0 {
			continue
		}
		vals := make([]any, len(f.values))
		for i, v := range f.values {
			vals[i] = v.Interface()
		}
		out[f.name] = vals
	}
	return out
}

// String renders Document(name=[Bill],reference=[1,2]).
func (d *Document) String() string {
	var b strings.Builder
	b.WriteString("Document(")
	first := true
	for _, f := range d.fields {
		if len(f.values) == 0 {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(f.name)
		b.WriteString("=[")
		for i, v := range f.values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.String())
		}
		b.WriteByte(']')
	}
	b.WriteByte(')')
	return b.String()
}

// FromMap builds a document from plain Go values. Keys are added in sorted
// order. Scalars become one value, slices and arrays become a multi-valued
// field. Maps and unsupported kinds fail with ErrTypeMismatch.
func FromMap(m map[string]any) (*Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := New()
	for _, k := range keys {
		vals, err := valuesOf(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		for _, v := range vals {
			doc.AddValue(k, v)
		}
	}
	return doc, nil
}

func valuesOf(raw any) ([]Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch x := raw.(type) {
	case []byte:
		return []Value{BytesValue(x)}, nil
	case Value:
		return []Value{x}, nil
	case []Value:
		return x, nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := scalarOf(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	v, err := scalarOf(raw)
	if err != nil {
		return nil, err
	}
	return []Value{v}, nil
}

func scalarOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case string:
		return TextValue(x), nil
	case time.Time:
		return DateValue(x), nil
	case Facet:
		return FacetValue(x), nil
	case []byte:
		return BytesValue(x), nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return I64Value(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return U64Value(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return F64Value(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported value of type %T", apperrors.ErrTypeMismatch, raw)
}
