package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

type tokenKind int

const (
	tWord tokenKind = iota
	tPhrase
	tField
	tLParen
	tRParen
	tPlus
	tMinus
	tAnd
	tOr
	tNot
	tStar
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a query string. Operators AND, OR and NOT are recognised in
// upper case only. A '+' or '-' is a prefix operator only at the start of
// a clause. "name:" directly followed by a value yields a field token.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tLParen, pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tRParen, pos: i})
			i++
		case r == '+':
			tokens = append(tokens, token{kind: tPlus, pos: i})
			i++
		case r == '-':
			tokens = append(tokens, token{kind: tMinus, pos: i})
			i++
		case r == '"':
			text, next, err := lexQuoted(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tPhrase, text: text, pos: i})
			i = next
		default:
			if name, ok := fieldPrefix(input[i:]); ok {
				tokens = append(tokens, token{kind: tField, text: name, pos: i})
				i += len(name) + 1
				if i < len(input) && input[i] != '"' && input[i] != '(' && !isSpaceAt(input, i) {
					word, next := lexWord(input, i)
					tok := token{kind: tWord, text: word, pos: i}
					if word == "*" {
						tok = token{kind: tStar, pos: i}
					}
					tokens = append(tokens, tok)
					i = next
				}
				continue
			}
			word, next := lexWord(input, i)
			tokens = append(tokens, classify(word, i))
			i = next
		}
	}
	return tokens, nil
}

func classify(word string, pos int) token {
	switch word {
	case "AND", "&&":
		return token{kind: tAnd, pos: pos}
	case "OR", "||":
		return token{kind: tOr, pos: pos}
	case "NOT":
		return token{kind: tNot, pos: pos}
	case "*":
		return token{kind: tStar, pos: pos}
	}
	return token{kind: tWord, text: word, pos: pos}
}

func lexQuoted(input string, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(input); i++ {
		c := input[i]
		switch c {
		case '\\':
			if i+1 < len(input) {
				i++
				b.WriteByte(input[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated phrase starting at offset %d", apperrors.ErrQuerySyntax, start)
}

// lexWord reads up to white space or a parenthesis. A backslash escapes
// the next byte.
func lexWord(input string, start int) (string, int) {
	var b strings.Builder
	i := start
	for i < len(input) {
		c := input[i]
		if c == '(' || c == ')' || isSpaceAt(input, i) {
			break
		}
		if c == '\\' && i+1 < len(input) {
			b.WriteByte(input[i+1])
			i += 2
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), i
}

// fieldPrefix reports an identifier followed by ':' at the start of s.
func fieldPrefix(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return s[:i], i > 0
		case c == '_' || c == '.' || c == '-' && i > 0,
			c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9' && i > 0:
		default:
			return "", false
		}
	}
	return "", false
}

func isSpaceAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}
