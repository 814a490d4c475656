package document

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// facetSep separates path segments inside encoded facet term bytes. It
// cannot appear in a segment, so byte order of encoded facets matches
// segment-wise order.
const facetSep = 0x00

// Facet is a hierarchical path such as /europe/france. The zero value is
// the root facet.
type Facet struct {
	segments []string
}

// FacetFromString parses a rooted path. A literal '/' inside a segment is
// written as `\/` and a literal backslash as `\\`.
func FacetFromString(s string) (Facet, error) {
	if !strings.HasPrefix(s, "/") {
		return Facet{}, fmt.Errorf("%w: %q is not rooted", apperrors.ErrMalformedFacetPath, s)
	}
	if s == "/" {
		return Facet{}, nil
	}
	var (
		segments []string
		cur      strings.Builder
	)
	rest := s[1:]
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch c {
		case '\\':
			if i+1 >= len(rest) {
				return Facet{}, fmt.Errorf("%w: dangling escape in %q", apperrors.ErrMalformedFacetPath, s)
			}
			i++
			cur.WriteByte(rest[i])
		case '/':
			if cur.Len() == 0 {
				return Facet{}, fmt.Errorf("%w: empty segment in %q", apperrors.ErrMalformedFacetPath, s)
			}
			segments = append(segments, cur.String())
			cur.Reset()
		case facetSep:
			return Facet{}, fmt.Errorf("%w: NUL byte in %q", apperrors.ErrMalformedFacetPath, s)
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() == 0 {
		return Facet{}, fmt.Errorf("%w: empty segment in %q", apperrors.ErrMalformedFacetPath, s)
	}
	segments = append(segments, cur.String())
	return Facet{segments: segments}, nil
}

// FacetFromPath builds a facet from already split segments.
func FacetFromPath(path []string) (Facet, error) {
	segments := make([]string, 0, len(path))
	for _, seg := range path {
		if seg == "" || strings.IndexByte(seg, facetSep) >= 0 {
			return Facet{}, fmt.Errorf("%w: invalid segment %q", apperrors.ErrMalformedFacetPath, seg)
		}
		segments = append(segments, seg)
	}
	return Facet{segments: segments}, nil
}

// FacetFromEncoded is the inverse of Encoded.
func FacetFromEncoded(b []byte) Facet {
	if len(b) == 0 {
		return Facet{}
	}
	return Facet{segments: strings.Split(string(b), string(rune(facetSep)))}
}

func (f Facet) IsRoot() bool { return len(f.segments) == 0 }

// ToPath returns a copy of the unescaped segments.
func (f Facet) ToPath() []string {
	out := make([]string, len(f.segments))
	copy(out, f.segments)
	return out
}

// ToPathStr renders the escaped, rooted path accepted by FacetFromString.
func (f Facet) ToPathStr() string {
	if f.IsRoot() {
		return "/"
	}
	var b strings.Builder
	for _, seg := range f.segments {
		b.WriteByte('/')
		for i := 0; i < len(seg); i++ {
			if seg[i] == '/' || seg[i] == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(seg[i])
		}
	}
	return b.String()
}

// IsPrefixOf reports whether f is an ancestor of, or equal to, other.
func (f Facet) IsPrefixOf(other Facet) bool {
	if len(f.segments) > len(other.segments) {
		return false
	}
	for i, seg := range f.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

func (f Facet) Equal(other Facet) bool {
	return len(f.segments) == len(other.segments) && f.IsPrefixOf(other)
}

// Encoded returns the term bytes of the facet.
func (f Facet) Encoded() []byte {
	return []byte(strings.Join(f.segments, string(rune(facetSep))))
}

func (f Facet) String() string {
	return "Facet(" + f.ToPathStr() + ")"
}
