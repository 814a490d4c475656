// Package schema describes the typed fields of an index. A Schema is built
// once with a Builder and is immutable afterwards; it is shared by the
// writer, the reader, document decoding and the query parser.
package schema

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// FieldType is the value type declared for a field.
type FieldType uint8

const (
	Text FieldType = iota
	U64
	I64
	F64
	Date
	Facet
	Bytes
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case U64:
		return "u64"
	case I64:
		return "i64"
	case F64:
		return "f64"
	case Date:
		return "date"
	case Facet:
		return "facet"
	case Bytes:
		return "bytes"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// ParseFieldType is the inverse of FieldType.String.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(s) {
	case "text":
		return Text, nil
	case "u64", "unsigned":
		return U64, nil
	case "i64", "integer", "signed":
		return I64, nil
	case "f64", "float":
		return F64, nil
	case "date":
		return Date, nil
	case "facet":
		return Facet, nil
	case "bytes":
		return Bytes, nil
	}
	return 0, fmt.Errorf("%w: unknown field type %q", apperrors.ErrInvalidArgument, s)
}

// Field is the dense, zero-based id of a field, assigned in declaration
// order.
type Field uint32

// FieldOptions controls how values of a field are handled.
type FieldOptions struct {
	Stored    bool   `msgpack:"s" yaml:"stored"`
	Indexed   bool   `msgpack:"i" yaml:"indexed"`
	Tokenizer string `msgpack:"t,omitempty" yaml:"tokenizer"`
}

// FieldEntry is the full declaration of one field.
type FieldEntry struct {
	Name    string       `msgpack:"n"`
	Type    FieldType    `msgpack:"y"`
	Options FieldOptions `msgpack:"o"`
}

// IsText reports whether values of this field go through a tokenizer.
func (e FieldEntry) IsText() bool { return e.Type == Text }

// Schema is an immutable, ordered list of fields.
type Schema struct {
	entries []FieldEntry
	byName  map[string]Field
}

// Field resolves a field by exact, case-sensitive name.
func (s *Schema) Field(name string) (Field, error) {
	f, ok := s.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownField, name)
	}
	return f, nil
}

// Entry returns the declaration of f. It panics on ids not produced by
// this schema.
func (s *Schema) Entry(f Field) FieldEntry {
	return s.entries[f]
}

// HasField reports whether f is a valid id for this schema.
func (s *Schema) HasField(f Field) bool {
	return int(f) < len(s.entries)
}

// FieldName returns the name of f, or "" for an unknown id.
func (s *Schema) FieldName(f Field) string {
	if !s.HasField(f) {
		return ""
	}
	return s.entries[f].Name
}

// Fields returns all declarations in field-id order.
func (s *Schema) Fields() []FieldEntry {
	out := make([]FieldEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Schema) NumFields() int { return len(s.entries) }

// IndexedTextFields returns the ids of every indexed text field, ascending.
func (s *Schema) IndexedTextFields() []Field {
	var out []Field
	for i, e := range s.entries {
		if e.Type == Text && e.Options.Indexed {
			out = append(out, Field(i))
		}
	}
	return out
}

// Equal reports whether both schemas declare the same fields in the same
// order with the same options.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.entries) != len(other.entries) {
		return false
	}
	for i := range s.entries {
		if s.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("Schema(")
	for i, e := range s.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%s", e.Name, e.Type)
		if e.Options.Stored {
			b.WriteString("+stored")
		}
		if e.Options.Indexed {
			b.WriteString("+indexed")
		}
	}
	b.WriteString(")")
	return b.String()
}

// FromEntries rebuilds a schema from persisted declarations.
func FromEntries(entries []FieldEntry) (*Schema, error) {
	b := NewBuilder()
	for _, e := range entries {
		if _, err := b.add(e); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
