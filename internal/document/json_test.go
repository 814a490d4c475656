package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

func TestFromJSONKeepsKeyOrder(t *testing.T) {
	doc, err := FromJSON(`{"title": ["Frankenstein", "The Modern Prometheus"], "body": "You will rejoice", "n": 3, "x": 1.5}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "body", "n", "x"}, doc.FieldNames())
	assert.Equal(t, []Value{TextValue("Frankenstein"), TextValue("The Modern Prometheus")}, doc.Get("title"))
	assert.Equal(t, I64Value(3), doc.Get("n")[0])
	assert.Equal(t, F64Value(1.5), doc.Get("x")[0])
}

func TestFromJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"truncated", `{"title": "x"`, apperrors.ErrMalformedJSON},
		{"not an object", `["a"]`, apperrors.ErrMalformedJSON},
		{"trailing data", `{"a": "b"} {}`, apperrors.ErrMalformedJSON},
		{"nested object", `{"a": {"b": 1}}`, apperrors.ErrTypeMismatch},
		{"nested array", `{"a": [[1]]}`, apperrors.ErrTypeMismatch},
		{"bool", `{"a": true}`, apperrors.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromJSON(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromJSONSkipsNull(t *testing.T) {
	doc, err := FromJSON(`{"a": null, "b": ["x", null]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, doc.FieldNames())
	assert.Len(t, doc.Get("b"), 1)
}

func TestDecodeJSONCoercesDeclaredTypes(t *testing.T) {
	s := newTypedSchema(t)
	doc, err := DecodeJSON(s, `{
		"title": "Of Mice and Men",
		"year": 1937,
		"delta": -2,
		"rating": 4,
		"published": "1937-02-06T00:00:00Z",
		"category": "/books/novella",
		"blob": "AQI="
	}`)
	require.NoError(t, err)

	assert.Equal(t, U64Value(1937), doc.Get("year")[0])
	assert.Equal(t, I64Value(-2), doc.Get("delta")[0])
	assert.Equal(t, F64Value(4), doc.Get("rating")[0])
	d, ok := doc.Get("published")[0].Date()
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(1937, 2, 6, 0, 0, 0, 0, time.UTC)))
	f, ok := doc.Get("category")[0].Facet()
	require.True(t, ok)
	assert.Equal(t, "/books/novella", f.ToPathStr())
	b, ok := doc.Get("blob")[0].Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)

	_, err = doc.Validate(s)
	assert.NoError(t, err)
}

func TestDecodeJSONErrors(t *testing.T) {
	s := newTypedSchema(t)
	tests := []struct {
		name  string
		in    string
		cause error
	}{
		{"unknown field", `{"author": "x"}`, apperrors.ErrUnknownField},
		{"negative u64", `{"year": -1}`, apperrors.ErrTypeMismatch},
		{"string for u64", `{"year": "1937"}`, apperrors.ErrTypeMismatch},
		{"number for text", `{"title": 1}`, apperrors.ErrTypeMismatch},
		{"bad date", `{"published": "yesterday"}`, apperrors.ErrTypeMismatch},
		{"bad facet", `{"category": "books"}`, apperrors.ErrMalformedFacetPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON(s, tt.in)
			assert.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
			assert.ErrorIs(t, err, tt.cause)
		})
	}

	_, err := DecodeJSON(s, `{"title": `)
	assert.ErrorIs(t, err, apperrors.ErrMalformedJSON)
}
