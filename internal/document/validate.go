package document

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// FieldValue is a value bound to a resolved field id.
type FieldValue struct {
	Field schema.Field
	Value Value
}

// Validate resolves every field name against s and checks each value
// against the declared type. Integers widen where no information is lost
// and text converts into facet paths. Every failure wraps
// ErrSchemaMismatch plus the cause.
func (d *Document) Validate(s *schema.Schema) ([]FieldValue, error) {
	var out []FieldValue
	for _, f := range d.fields {
		if len(f.values) == 0 {
			continue
		}
		field, err := s.Field(f.name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaMismatch, err)
		}
		entry := s.Entry(field)
		for _, v := range f.values {
			cv, err := convert(entry.Type, v)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %w", apperrors.ErrSchemaMismatch, f.name, err)
			}
			out = append(out, FieldValue{Field: field, Value: cv})
		}
	}
	return out, nil
}

func convert(want schema.FieldType, v Value) (Value, error) {
	if v.typ == want {
		return v, nil
	}
	switch want {
	case schema.U64:
		if i, ok := v.I64(); ok && i >= 0 {
			return U64Value(uint64(i)), nil
		}
	case schema.I64:
		if u, ok := v.U64(); ok && u <= math.MaxInt64 {
			return I64Value(int64(u)), nil
		}
	case schema.F64:
		if i, ok := v.I64(); ok {
			return F64Value(float64(i)), nil
		}
		if u, ok := v.U64(); ok {
			return F64Value(float64(u)), nil
		}
	case schema.Facet:
		if s, ok := v.Text(); ok {
			f, err := FacetFromString(s)
			if err != nil {
				return Value{}, err
			}
			return FacetValue(f), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s value for %s field", apperrors.ErrTypeMismatch, v.typ, want)
}
