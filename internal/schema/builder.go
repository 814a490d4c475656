package schema

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// DefaultTokenizer is used for text fields that do not name one.
const DefaultTokenizer = "default"

// Builder collects field declarations. It is not safe for concurrent use.
type Builder struct {
	entries []FieldEntry
	byName  map[string]Field
	built   bool
}

func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]Field)}
}

// AddTextField declares a tokenized text field. Text fields are always
// indexed.
func (b *Builder) AddTextField(name string, opts FieldOptions) (Field, error) {
	opts.Indexed = true
	if opts.Tokenizer == "" {
		opts.Tokenizer = DefaultTokenizer
	}
	return b.add(FieldEntry{Name: name, Type: Text, Options: opts})
}

func (b *Builder) AddU64Field(name string, opts FieldOptions) (Field, error) {
	return b.add(FieldEntry{Name: name, Type: U64, Options: opts})
}

func (b *Builder) AddI64Field(name string, opts FieldOptions) (Field, error) {
	return b.add(FieldEntry{Name: name, Type: I64, Options: opts})
}

func (b *Builder) AddF64Field(name string, opts FieldOptions) (Field, error) {
	return b.add(FieldEntry{Name: name, Type: F64, Options: opts})
}

func (b *Builder) AddDateField(name string, opts FieldOptions) (Field, error) {
	return b.add(FieldEntry{Name: name, Type: Date, Options: opts})
}

// AddFacetField declares a hierarchical facet field. Facets are always
// indexed.
func (b *Builder) AddFacetField(name string, opts FieldOptions) (Field, error) {
	opts.Indexed = true
	return b.add(FieldEntry{Name: name, Type: Facet, Options: opts})
}

func (b *Builder) AddBytesField(name string, opts FieldOptions) (Field, error) {
	return b.add(FieldEntry{Name: name, Type: Bytes, Options: opts})
}

// AddField declares a field of an arbitrary type.
func (b *Builder) AddField(name string, typ FieldType, opts FieldOptions) (Field, error) {
	switch typ {
	case Text:
		return b.AddTextField(name, opts)
	case Facet:
		return b.AddFacetField(name, opts)
	}
	return b.add(FieldEntry{Name: name, Type: typ, Options: opts})
}

func (b *Builder) add(e FieldEntry) (Field, error) {
	if b.built {
		return 0, fmt.Errorf("%w: schema builder already built", apperrors.ErrInvalidArgument)
	}
	if e.Name == "" {
		return 0, fmt.Errorf("%w: empty field name", apperrors.ErrInvalidArgument)
	}
	if _, exists := b.byName[e.Name]; exists {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrDuplicateField, e.Name)
	}
	f := Field(len(b.entries))
	b.entries = append(b.entries, e)
	b.byName[e.Name] = f
	return f, nil
}

// Build freezes the builder. An empty schema is legal.
func (b *Builder) Build() *Schema {
	b.built = true
	entries := make([]FieldEntry, len(b.entries))
	copy(entries, b.entries)
	byName := make(map[string]Field, len(b.byName))
	for k, v := range b.byName {
		byName[k] = v
	}
	return &Schema{entries: entries, byName: byName}
}
