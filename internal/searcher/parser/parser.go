// Package parser compiles query strings into query trees bound to the
// fields and term encodings of a schema.
package parser

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

const maxDepth = 32

// QueryParser turns query strings into query trees. Unqualified terms
// search the default fields, always in ascending field id order.
type QueryParser struct {
	schema       *schema.Schema
	defaults     []schema.Field
	defaultOccur query.Occur
}

// New creates a parser. With no default field names every indexed text
// field is a default field.
func New(s *schema.Schema, defaultFields ...string) (*QueryParser, error) {
	p := &QueryParser{schema: s, defaultOccur: query.Should}
	if len(defaultFields) == 0 {
		p.defaults = s.IndexedTextFields()
		return p, nil
	}
	seen := make(map[schema.Field]bool, len(defaultFields))
	for _, name := range defaultFields {
		f, err := p.resolve(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			p.defaults = append(p.defaults, f)
		}
	}
	sort.Slice(p.defaults, func(i, j int) bool { return p.defaults[i] < p.defaults[j] })
	return p, nil
}

// SetConjunctionByDefault makes clauses without an operator required.
func (p *QueryParser) SetConjunctionByDefault() {
	p.defaultOccur = query.Must
}

// DefaultFields returns the resolved default fields.
func (p *QueryParser) DefaultFields() []schema.Field {
	return append([]schema.Field(nil), p.defaults...)
}

func (p *QueryParser) resolve(name string) (schema.Field, error) {
	f, err := p.schema.Field(name)
	if err != nil {
		return 0, err
	}
	if !p.schema.Entry(f).Options.Indexed {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrFieldNotIndexed, name)
	}
	return f, nil
}

// Parse compiles text. An empty query yields EmptyQuery.
func (p *QueryParser) Parse(text string) (*query.Parsed, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	st := &state{QueryParser: p, tokens: tokens}
	root, err := st.sequence(p.defaults, 0)
	if err != nil {
		return nil, err
	}
	if !st.eof() {
		return nil, st.errorf("unexpected %s", st.describe(st.peek()))
	}
	return &query.Parsed{Root: root, Raw: text}, nil
}

type state struct {
	*QueryParser
	tokens []token
	pos    int
}

func (s *state) eof() bool   { return s.pos >= len(s.tokens) }
func (s *state) peek() token { return s.tokens[s.pos] }

func (s *state) next() token {
	t := s.tokens[s.pos]
	s.pos++
	return t
}

func (s *state) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrQuerySyntax, fmt.Sprintf(format, args...))
}

func (s *state) describe(t token) string {
	switch t.kind {
	case tRParen:
		return "')'"
	case tLParen:
		return "'('"
	case tAnd:
		return "AND"
	case tOr:
		return "OR"
	}
	return fmt.Sprintf("token at offset %d", t.pos)
}

type operator int

const (
	opNone operator = iota
	opAnd
	opOr
)

type item struct {
	occur query.Occur
	bound bool
	q     query.Query
}

// sequence parses clauses up to a closing parenthesis or the end of input.
// AND makes both neighbours Must and OR makes both Should unless a prefix
// operator or an earlier AND/OR already decided their occurrence.
func (s *state) sequence(fields []schema.Field, depth int) (query.Query, error) {
	if depth > maxDepth {
		return nil, s.errorf("query nested deeper than %d levels", maxDepth)
	}
	var items []item
	op := opNone
	for !s.eof() && s.peek().kind != tRParen {
		t := s.peek()
		if t.kind == tAnd || t.kind == tOr {
			if len(items) == 0 || op != opNone {
				return nil, s.errorf("%s without a left operand", s.describe(t))
			}
			s.next()
			op = opAnd
			if t.kind == tOr {
				op = opOr
			}
			continue
		}

		it := item{occur: s.defaultOccur}
		switch t.kind {
		case tPlus:
			s.next()
			it.occur, it.bound = query.Must, true
		case tMinus, tNot:
			s.next()
			it.occur, it.bound = query.MustNot, true
		}
		q, err := s.atom(fields, depth)
		if err != nil {
			return nil, err
		}
		it.q = q

		if op != opNone && len(items) > 0 {
			want := query.Must
			if op == opOr {
				want = query.Should
			}
			prev := &items[len(items)-1]
			if !prev.bound {
				prev.occur, prev.bound = want, true
			}
			if !it.bound {
				it.occur, it.bound = want, true
			}
		}
		op = opNone
		items = append(items, it)
	}
	if op != opNone {
		return nil, s.errorf("operator without a right operand")
	}
	return build(items), nil
}

func build(items []item) query.Query {
	clauses := make([]query.Clause, 0, len(items))
	for _, it := range items {
		if _, empty := it.q.(query.EmptyQuery); empty {
			continue
		}
		clauses = append(clauses, query.Clause{Occur: it.occur, Query: it.q})
	}
	switch {
	case len(clauses) == 0:
		return query.EmptyQuery{}
	case len(clauses) == 1 && clauses[0].Occur != query.MustNot:
		return clauses[0].Query
	}
	return query.NewBoolean(clauses...)
}

func (s *state) atom(fields []schema.Field, depth int) (query.Query, error) {
	if s.eof() {
		return nil, s.errorf("unexpected end of query")
	}
	t := s.next()
	switch t.kind {
	case tLParen:
		q, err := s.sequence(fields, depth+1)
		if err != nil {
			return nil, err
		}
		if s.eof() || s.peek().kind != tRParen {
			return nil, s.errorf("missing ')' for '(' at offset %d", t.pos)
		}
		s.next()
		return q, nil
	case tStar:
		return query.AllQuery{}, nil
	case tField:
		f, err := s.resolve(t.text)
		if err != nil {
			return nil, err
		}
		if s.eof() {
			return nil, s.errorf("missing value for field %q", t.text)
		}
		switch v := s.peek(); v.kind {
		case tLParen:
			return s.atom([]schema.Field{f}, depth)
		case tWord, tPhrase:
			s.next()
			return s.leaf([]schema.Field{f}, v.text)
		case tStar:
			s.next()
			return query.AllQuery{}, nil
		}
		return nil, s.errorf("missing value for field %q", t.text)
	case tWord, tPhrase:
		return s.leaf(fields, t.text)
	}
	return nil, s.errorf("unexpected %s", s.describe(t))
}

// leaf expands one literal over fields: one field gives its query
// directly, several give a Should over the per-field queries.
func (s *state) leaf(fields []schema.Field, text string) (query.Query, error) {
	if len(fields) == 0 {
		return nil, s.errorf("term %q has no field and no default fields are configured", text)
	}
	branches := make([]query.Clause, 0, len(fields))
	for _, f := range fields {
		q, err := s.fieldQuery(f, text)
		if err != nil {
			return nil, err
		}
		if _, empty := q.(query.EmptyQuery); empty {
			continue
		}
		branches = append(branches, query.Clause{Occur: query.Should, Query: q})
	}
	switch len(branches) {
	case 0:
		return query.EmptyQuery{}, nil
	case 1:
		return branches[0].Query, nil
	}
	return query.NewBoolean(branches...), nil
}

func (s *state) fieldQuery(f schema.Field, text string) (query.Query, error) {
	entry := s.schema.Entry(f)
	switch entry.Type {
	case schema.Text:
		tok, err := tokenizer.Get(entry.Options.Tokenizer)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", entry.Name, err)
		}
		tokens := tok.Tokenize(text)
		switch len(tokens) {
		case 0:
			return query.EmptyQuery{}, nil
		case 1:
			return query.TermQuery{Term: term.FromFieldText(f, tokens[0].Term)}, nil
		}
		terms := make([]term.Term, len(tokens))
		for i, t := range tokens {
			terms[i] = term.FromFieldText(f, t.Term)
		}
		return query.PhraseQuery{Field: f, Terms: terms}, nil
	case schema.U64:
		v, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldU64(f, v)}, nil
	case schema.I64:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldI64(f, v)}, nil
	case schema.F64:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldF64(f, v)}, nil
	case schema.Date:
		v, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldDate(f, v)}, nil
	case schema.Facet:
		facet, err := document.FacetFromString(text)
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldFacet(f, facet)}, nil
	case schema.Bytes:
		v, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return nil, s.literalErr(entry, text, err)
		}
		return query.TermQuery{Term: term.FromFieldBytes(f, v)}, nil
	}
	return nil, fmt.Errorf("%w: field %q has unsupported type %s", apperrors.ErrInvalidArgument, entry.Name, entry.Type)
}

func (s *state) literalErr(entry schema.FieldEntry, text string, err error) error {
	return fmt.Errorf("%w: %q is not a valid %s value for field %q: %w",
		apperrors.ErrQuerySyntax, text, entry.Type, entry.Name, err)
}
