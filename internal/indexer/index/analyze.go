package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/term"
)

// positionGap separates consecutive values of a multi-valued text field so
// that phrases never match across values.
const positionGap = 1

// AnalyzedDoc is a validated document broken into term occurrences, field
// lengths and the values to store.
type AnalyzedDoc struct {
	Terms  map[string]*Occurrence
	Norms  map[schema.Field]uint32
	Stored []document.FieldValue
}

// Analyze tokenizes text fields, encodes the other indexed values and
// collects stored values. Facets are indexed together with every ancestor
// so that a parent facet matches its descendants.
func Analyze(s *schema.Schema, fvs []document.FieldValue) (AnalyzedDoc, error) {
	a := AnalyzedDoc{
		Terms: make(map[string]*Occurrence),
		Norms: make(map[schema.Field]uint32),
	}
	nextPos := make(map[schema.Field]uint32)
	for _, fv := range fvs {
		entry := s.Entry(fv.Field)
		if entry.Options.Stored {
			a.Stored = append(a.Stored, fv)
		}
		if !entry.Options.Indexed {
			continue
		}
		switch entry.Type {
		case schema.Text:
			text, _ := fv.Value.Text()
			tok, err := tokenizer.Get(entry.Options.Tokenizer)
			if err != nil {
				return AnalyzedDoc{}, fmt.Errorf("field %q: %w", entry.Name, err)
			}
			base := nextPos[fv.Field]
			tokens := tok.Tokenize(text)
			var last uint32
			for _, t := range tokens {
				pos := base + uint32(t.Position)
				a.add(term.AppendKey(nil, fv.Field, []byte(t.Term)), pos)
				last = pos
			}
			if len(tokens) > 0 {
				nextPos[fv.Field] = last + 1 + positionGap
			}
			a.Norms[fv.Field] += uint32(len(tokens))
		case schema.Facet:
			facet, _ := fv.Value.Facet()
			path := facet.ToPath()
			for depth := 1; depth <= len(path); depth++ {
				ancestor, err := document.FacetFromPath(path[:depth])
				if err != nil {
					return AnalyzedDoc{}, err
				}
				a.add(term.AppendKey(nil, fv.Field, ancestor.Encoded()), 0)
			}
		default:
			t, err := term.FromValue(fv.Field, fv.Value)
			if err != nil {
				return AnalyzedDoc{}, err
			}
			a.add(t.Key(), 0)
			a.Norms[fv.Field]++
		}
	}
	return a, nil
}

func (a *AnalyzedDoc) add(key []byte, pos uint32) {
	occ, ok := a.Terms[string(key)]
	if !ok {
		occ = &Occurrence{Positions: make([]uint32, 0, 2)}
		a.Terms[string(key)] = occ
	}
	occ.Frequency++
	occ.Positions = append(occ.Positions, pos)
}

// Size estimates the heap bytes the document occupies once buffered.
func (a *AnalyzedDoc) Size() int64 {
	var size int64
	for key, occ := range a.Terms {
		size += int64(len(key) + len(occ.Positions)*4 + 48)
	}
	for _, fv := range a.Stored {
		size += 32
		if s, ok := fv.Value.Text(); ok {
			size += int64(len(s))
		}
		if b, ok := fv.Value.Bytes(); ok {
			size += int64(len(b))
		}
	}
	return size + int64(len(a.Norms))*8
}
