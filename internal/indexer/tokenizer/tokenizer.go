// Package tokenizer turns text field values into token streams. The same
// tokenizer must run at index time and at query time so that term bytes
// agree exactly.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// MaxTokenLen is the longest token, in bytes, the default analyzers keep.
const MaxTokenLen = 40

// Token is one normalised term, its position in the stream and the byte
// offset of the source word.
type Token struct {
	Term     string
	Position int
	Offset   int
}

type Tokenizer interface {
	Tokenize(text string) []Token
}

// Func adapts a plain function to the Tokenizer interface.
type Func func(text string) []Token

func (f Func) Tokenize(text string) []Token { return f(text) }

var (
	registryMu sync.RWMutex
	registry   = map[string]Tokenizer{
		"default":    Func(Default),
		"raw":        Func(Raw),
		"whitespace": Func(Whitespace),
		"en_stem":    Func(EnglishStem),
	}
)

// Register installs a tokenizer under name, replacing any previous one.
func Register(name string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = t
}

// Get looks up a registered tokenizer. An empty name selects "default".
func Get(name string) (Tokenizer, error) {
	if name == "" {
		name = "default"
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tokenizer %q", apperrors.ErrInvalidArgument, name)
	}
	return t, nil
}

// Names lists registered tokenizers in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default splits on anything that is not a letter or digit, lower-cases
// and drops tokens longer than MaxTokenLen.
func Default(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	eachWord(text, isWordRune, func(word string, offset int) {
		if len(word) > MaxTokenLen {
			return
		}
		tokens = append(tokens, Token{Term: strings.ToLower(word), Position: pos, Offset: offset})
		pos++
	})
	return tokens
}

// Raw emits the whole value as one token.
func Raw(text string) []Token {
	if text == "" {
		return nil
	}
	return []Token{{Term: text}}
}

// Whitespace splits on Unicode white space and lower-cases.
func Whitespace(text string) []Token {
	var tokens []Token
	pos := 0
	eachWord(text, func(r rune) bool { return !unicode.IsSpace(r) }, func(word string, offset int) {
		tokens = append(tokens, Token{Term: strings.ToLower(word), Position: pos, Offset: offset})
		pos++
	})
	return tokens
}

// EnglishStem is Default followed by stop-word removal and a suffix
// stemmer.
func EnglishStem(text string) []Token {
	base := Default(text)
	tokens := make([]Token, 0, len(base))
	pos := 0
	for _, tok := range base {
		if len(tok.Term) < 2 {
			continue
		}
		if _, isStop := stopWords[tok.Term]; isStop {
			continue
		}
		stemmed := stem(tok.Term)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stemmed, Position: pos, Offset: tok.Offset})
		pos++
	}
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func eachWord(text string, inWord func(rune) bool, fn func(word string, offset int)) {
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if inWord(r) {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			fn(text[start:i], start)
			start = -1
		}
		i += size
	}
	if start >= 0 {
		fn(text[start:], start)
	}
}
