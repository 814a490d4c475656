// Package query defines the query tree produced by the parser and
// evaluated by the executor. Every node renders a stable repr.
package query

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
)

// Query is a node of the query tree.
type Query interface {
	String() string
	query()
}

// Occur is how a boolean clause takes part in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "Must"
	case MustNot:
		return "MustNot"
	}
	return "Should"
}

// TermQuery matches documents containing one term.
type TermQuery struct {
	Term term.Term
}

func (TermQuery) query() {}

func (q TermQuery) String() string {
	return "TermQuery(" + q.Term.String() + ")"
}

// PhraseQuery matches documents containing the terms at consecutive
// positions of one field.
type PhraseQuery struct {
	Field schema.Field
	Terms []term.Term
}

func (PhraseQuery) query() {}

func (q PhraseQuery) String() string {
	var b strings.Builder
	b.WriteString("PhraseQuery(field=")
	b.WriteString(strconv.FormatUint(uint64(q.Field), 10))
	b.WriteString(",terms=[")
	for i, t := range q.Terms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.String())
	}
	b.WriteString("])")
	return b.String()
}

// Clause is one (Occur, Query) pair of a boolean query.
type Clause struct {
	Occur Occur
	Query Query
}

func (c Clause) String() string {
	return "(" + c.Occur.String() + ", " + c.Query.String() + ")"
}

// BooleanQuery combines clauses. Clause order is preserved in the repr.
type BooleanQuery struct {
	Clauses []Clause
}

func (*BooleanQuery) query() {}

func (q *BooleanQuery) String() string {
	var b strings.Builder
	b.WriteString("BooleanQuery { subqueries: [")
	for i, c := range q.Clauses {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.String())
	}
	b.WriteString("] }")
	return b.String()
}

// NewBoolean builds a boolean query from clauses.
func NewBoolean(clauses ...Clause) *BooleanQuery {
	return &BooleanQuery{Clauses: clauses}
}

// Add appends a clause and returns q.
func (q *BooleanQuery) Add(o Occur, sub Query) *BooleanQuery {
	q.Clauses = append(q.Clauses, Clause{Occur: o, Query: sub})
	return q
}

// AllQuery matches every live document.
type AllQuery struct{}

func (AllQuery) query()         {}
func (AllQuery) String() string { return "AllQuery" }

// EmptyQuery matches nothing.
type EmptyQuery struct{}

func (EmptyQuery) query()         {}
func (EmptyQuery) String() string { return "EmptyQuery" }

// Parsed is the result of parsing a query string.
type Parsed struct {
	Root Query
	Raw  string
}

func (p *Parsed) String() string {
	return "Query(" + p.Root.String() + ")"
}

// Terms collects every term of q in tree order. MustNot branches are
// included.
func Terms(q Query) []term.Term {
	var out []term.Term
	Walk(q, func(n Query) {
		switch n := n.(type) {
		case TermQuery:
			out = append(out, n.Term)
		case PhraseQuery:
			out = append(out, n.Terms...)
		}
	})
	return out
}

// Walk calls fn for q and every node beneath it, depth first.
func Walk(q Query, fn func(Query)) {
	if q == nil {
		return
	}
	fn(q)
	if b, ok := q.(*BooleanQuery); ok {
		for _, c := range b.Clauses {
			Walk(c.Query, fn)
		}
	}
}
