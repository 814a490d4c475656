package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	for _, add := range []func() (schema.Field, error){
		func() (schema.Field, error) { return b.AddTextField("title", schema.FieldOptions{Stored: true}) },
		func() (schema.Field, error) { return b.AddTextField("body", schema.FieldOptions{}) },
		func() (schema.Field, error) { return b.AddU64Field("year", schema.FieldOptions{Indexed: true}) },
		func() (schema.Field, error) { return b.AddFacetField("category", schema.FieldOptions{}) },
		func() (schema.Field, error) { return b.AddI64Field("rating", schema.FieldOptions{Stored: true}) },
	} {
		_, err := add()
		require.NoError(t, err)
	}
	return b.Build()
}

func parse(t *testing.T, text string, fields ...string) string {
	t.Helper()
	p, err := New(testSchema(t), fields...)
	require.NoError(t, err)
	q, err := p.Parse(text)
	require.NoError(t, err)
	return q.String()
}

func TestSingleDefaultField(t *testing.T) {
	assert.Equal(t,
		"Query(TermQuery(Term(field=0,bytes=[119, 105, 110, 116, 101, 114])))",
		parse(t, "winter", "title"))
}

func TestAllTextFieldsAreDefaults(t *testing.T) {
	assert.Equal(t,
		"Query(BooleanQuery { subqueries: ["+
			"(Should, TermQuery(Term(field=0,bytes=[119, 105, 110, 116, 101, 114]))), "+
			"(Should, TermQuery(Term(field=1,bytes=[119, 105, 110, 116, 101, 114])))] })",
		parse(t, "winter"))
}

func TestDefaultFieldsSortedByID(t *testing.T) {
	assert.Equal(t, parse(t, "winter", "title", "body"), parse(t, "winter", "body", "title"))

	p, err := New(testSchema(t), "body", "title", "body")
	require.NoError(t, err)
	assert.Equal(t, []schema.Field{0, 1}, p.DefaultFields())
}

func TestAndQuery(t *testing.T) {
	assert.Equal(t,
		"Query(BooleanQuery { subqueries: ["+
			"(Must, TermQuery(Term(field=0,bytes=[109, 101, 110]))), "+
			"(Must, TermQuery(Term(field=1,bytes=[115, 117, 109, 109, 101, 114])))] })",
		parse(t, "title:men AND body:summer", "title", "body"))
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "or keeps should",
			input: "a OR b",
			want:  "BooleanQuery { subqueries: [(Should, TermQuery(Term(field=0,bytes=[97]))), (Should, TermQuery(Term(field=0,bytes=[98])))] }",
		},
		{
			name:  "prefix operators",
			input: "+a -b c",
			want:  "BooleanQuery { subqueries: [(Must, TermQuery(Term(field=0,bytes=[97]))), (MustNot, TermQuery(Term(field=0,bytes=[98]))), (Should, TermQuery(Term(field=0,bytes=[99])))] }",
		},
		{
			name:  "not keyword",
			input: "a NOT b",
			want:  "BooleanQuery { subqueries: [(Should, TermQuery(Term(field=0,bytes=[97]))), (MustNot, TermQuery(Term(field=0,bytes=[98])))] }",
		},
		{
			name:  "lone negation stays boolean",
			input: "-a",
			want:  "BooleanQuery { subqueries: [(MustNot, TermQuery(Term(field=0,bytes=[97])))] }",
		},
		{
			name:  "parentheses",
			input: "a AND (b OR c)",
			want:  "BooleanQuery { subqueries: [(Must, TermQuery(Term(field=0,bytes=[97]))), (Must, BooleanQuery { subqueries: [(Should, TermQuery(Term(field=0,bytes=[98]))), (Should, TermQuery(Term(field=0,bytes=[99])))] })] }",
		},
		{
			name:  "field group",
			input: "body:(x)",
			want:  "TermQuery(Term(field=1,bytes=[120]))",
		},
		{
			name:  "phrase",
			input: `"old man"`,
			want:  "PhraseQuery(field=0,terms=[Term(field=0,bytes=[111, 108, 100]), Term(field=0,bytes=[109, 97, 110])])",
		},
		{
			name:  "hyphenated word is a phrase",
			input: "eighty-four",
			want:  "PhraseQuery(field=0,terms=[Term(field=0,bytes=[101, 105, 103, 104, 116, 121]), Term(field=0,bytes=[102, 111, 117, 114])])",
		},
		{
			name:  "star",
			input: "*",
			want:  "AllQuery",
		},
		{
			name:  "field star",
			input: "body:*",
			want:  "AllQuery",
		},
		{
			name:  "field value is never an operator",
			input: "title:AND",
			want:  "TermQuery(Term(field=0,bytes=[97, 110, 100]))",
		},
		{
			name:  "empty",
			input: "   ",
			want:  "EmptyQuery",
		},
		{
			name:  "punctuation only",
			input: "!!!",
			want:  "EmptyQuery",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "Query("+tt.want+")", parse(t, tt.input, "title"))
		})
	}
}

func TestConjunctionByDefault(t *testing.T) {
	p, err := New(testSchema(t), "title")
	require.NoError(t, err)
	p.SetConjunctionByDefault()
	q, err := p.Parse("a b")
	require.NoError(t, err)
	assert.Equal(t,
		"Query(BooleanQuery { subqueries: [(Must, TermQuery(Term(field=0,bytes=[97]))), (Must, TermQuery(Term(field=0,bytes=[98])))] })",
		q.String())
}

func TestTypedLiterals(t *testing.T) {
	p, err := New(testSchema(t), "title")
	require.NoError(t, err)

	q, err := p.Parse("year:1952")
	require.NoError(t, err)
	assert.Equal(t, query.TermQuery{Term: term.FromFieldU64(2, 1952)}, q.Root)

	q, err = p.Parse(`category:/books/novella`)
	require.NoError(t, err)
	tq, ok := q.Root.(query.TermQuery)
	require.True(t, ok)
	assert.Equal(t, schema.Field(3), tq.Term.Field)
	assert.Equal(t, []byte("books\x00novella"), tq.Term.Bytes)

	_, err = p.Parse("year:soon")
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)
}

func TestErrors(t *testing.T) {
	p, err := New(testSchema(t), "title", "body")
	require.NoError(t, err)

	_, err = p.Parse("bod:men")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)

	_, err = p.Parse("rating:5")
	assert.ErrorIs(t, err, apperrors.ErrFieldNotIndexed)

	for _, bad := range []string{`"unterminated`, "(a b", "a)", "AND a", "a OR", "a AND OR b", "title:"} {
		_, err = p.Parse(bad)
		assert.ErrorIs(t, err, apperrors.ErrQuerySyntax, bad)
	}

	_, err = New(testSchema(t), "nope")
	assert.ErrorIs(t, err, apperrors.ErrUnknownField)
}

func TestParseIsDeterministic(t *testing.T) {
	p, err := New(testSchema(t))
	require.NoError(t, err)
	first, err := p.Parse("sea whale AND title:old")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := p.Parse("sea whale AND title:old")
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
	}
}

func TestParseTerm(t *testing.T) {
	s := testSchema(t)
	title, err := s.Field("title")
	require.NoError(t, err)
	year, err := s.Field("year")
	require.NoError(t, err)

	got, err := ParseTerm(s, "title", "Frankenstein")
	require.NoError(t, err)
	assert.True(t, got.Equal(term.FromFieldText(title, "frankenstein")))

	got, err = ParseTerm(s, "year", "1818")
	require.NoError(t, err)
	assert.True(t, got.Equal(term.FromFieldU64(year, 1818)))

	_, err = ParseTerm(s, "title", "two words")
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = ParseTerm(s, "year", "soon")
	require.ErrorIs(t, err, apperrors.ErrQuerySyntax)
	_, err = ParseTerm(s, "nope", "x")
	require.ErrorIs(t, err, apperrors.ErrUnknownField)
	_, err = ParseTerm(s, "rating", "5")
	require.ErrorIs(t, err, apperrors.ErrFieldNotIndexed)
}
