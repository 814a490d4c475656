package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// rawField is one key of a JSON object with its scalar values, in source
// order.
type rawField struct {
	name   string
	values []any
}

// FromJSON decodes a flat JSON object without a schema. Strings become
// text, integral numbers I64 (U64 above the int64 range), other numbers
// F64. Nested objects and arrays fail with ErrTypeMismatch.
func FromJSON(text string) (*Document, error) {
	fields, err := decodeObject(text)
	if err != nil {
		return nil, err
	}
	doc := New()
	for _, f := range fields {
		for _, raw := range f.values {
			v, err := looseValue(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.name, err)
			}
			doc.AddValue(f.name, v)
		}
	}
	return doc, nil
}

// DecodeJSON decodes a JSON object using the declared field types for
// coercion. Type errors and unknown keys wrap ErrSchemaMismatch together
// with the cause.
func DecodeJSON(s *schema.Schema, text string) (*Document, error) {
	fields, err := decodeObject(text)
	if err != nil {
		return nil, err
	}
	doc := New()
	for _, f := range fields {
		field, err := s.Field(f.name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaMismatch, err)
		}
		entry := s.Entry(field)
		for _, raw := range f.values {
			v, err := coerce(entry, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %w", apperrors.ErrSchemaMismatch, f.name, err)
			}
			doc.AddValue(f.name, v)
		}
	}
	return doc, nil
}

func decodeObject(text string) ([]rawField, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", apperrors.ErrMalformedJSON)
	}
	var fields []rawField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
		}
		values, err := flattenRaw(name, raw)
		if err != nil {
			return nil, err
		}
		fields = append(fields, rawField{name: name, values: values})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", apperrors.ErrMalformedJSON)
	}
	return fields, nil
}

func flattenRaw(name string, raw json.RawMessage) ([]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '{':
		return nil, fmt.Errorf("%w: field %q holds an object", apperrors.ErrTypeMismatch, name)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && (item[0] == '{' || item[0] == '[') {
				return nil, fmt.Errorf("%w: field %q holds a nested container", apperrors.ErrTypeMismatch, name)
			}
			v, err := decodeScalar(item)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out = append(out, v)
			}
		}
		return out, nil
	}
	v, err := decodeScalar(trimmed)
	if err != nil || v == nil {
		return nil, err
	}
	return []any{v}, nil
}

func decodeScalar(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedJSON, err)
	}
	return v, nil
}

func looseValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return TextValue(x), nil
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return I64Value(i), nil
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return U64Value(u), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %s", apperrors.ErrTypeMismatch, x)
		}
		return F64Value(f), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported JSON value %v", apperrors.ErrTypeMismatch, raw)
}

func coerce(entry schema.FieldEntry, raw any) (Value, error) {
	switch entry.Type {
	case schema.Text:
		if s, ok := raw.(string); ok {
			return TextValue(s), nil
		}
	case schema.U64:
		if n, ok := raw.(json.Number); ok {
			u, err := strconv.ParseUint(n.String(), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s is not a u64", apperrors.ErrTypeMismatch, n)
			}
			return U64Value(u), nil
		}
	case schema.I64:
		if n, ok := raw.(json.Number); ok {
			i, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s is not an i64", apperrors.ErrTypeMismatch, n)
			}
			return I64Value(i), nil
		}
	case schema.F64:
		if n, ok := raw.(json.Number); ok {
			f, err := n.Float64()
			if err != nil || math.IsInf(f, 0) {
				return Value{}, fmt.Errorf("%w: %s is not an f64", apperrors.ErrTypeMismatch, n)
			}
			return F64Value(f), nil
		}
	case schema.Date:
		switch x := raw.(type) {
		case string:
			t, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return Value{}, fmt.Errorf("%w: %q is not an RFC 3339 date", apperrors.ErrTypeMismatch, x)
			}
			return DateValue(t), nil
		case json.Number:
			secs, err := x.Int64()
			if err != nil {
				return Value{}, fmt.Errorf("%w: %s is not a unix timestamp", apperrors.ErrTypeMismatch, x)
			}
			return DateValue(time.Unix(secs, 0)), nil
		}
	case schema.Facet:
		if s, ok := raw.(string); ok {
			f, err := FacetFromString(s)
			if err != nil {
				return Value{}, err
			}
			return FacetValue(f), nil
		}
	case schema.Bytes:
		if s, ok := raw.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return Value{}, fmt.Errorf("%w: bytes must be base64", apperrors.ErrTypeMismatch)
			}
			return BytesValue(b), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %T for %s field", apperrors.ErrTypeMismatch, raw, entry.Type)
}
