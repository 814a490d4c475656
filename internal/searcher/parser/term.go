package parser

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// ParseTerm reads text as a single value of the named field, with the
// same literal rules as field:value in a query. Text values are analysed
// and must produce exactly one token.
func ParseTerm(s *schema.Schema, field, text string) (term.Term, error) {
	p := &QueryParser{schema: s}
	f, err := p.resolve(field)
	if err != nil {
		return term.Term{}, err
	}
	st := &state{QueryParser: p}
	q, err := st.fieldQuery(f, text)
	if err != nil {
		return term.Term{}, err
	}
	tq, ok := q.(query.TermQuery)
	if !ok {
		return term.Term{}, fmt.Errorf("%w: %q does not analyse to a single term of field %q",
			apperrors.ErrInvalidArgument, text, field)
	}
	return tq.Term, nil
}
