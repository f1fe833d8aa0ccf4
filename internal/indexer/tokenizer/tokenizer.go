// Package tokenizer provides the analyzers that turn a field value into a
// token stream. The standard analyzer lower-cases input, splits on
// non-alphanumeric boundaries, removes stop-words, and applies a simple
// suffix-based stemmer. Every token carries its position, character offsets
// and boost so posting formats can pick what they store.
package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term. Pos counts kept tokens from
// zero; StartChar and EndChar are rune offsets into the analyzed value.
type Token struct {
	Text      string
	Pos       int
	StartChar int
	EndChar   int
	Boost     float64
}

// Analyzer turns one field value into tokens.
type Analyzer interface {
	Analyze(value string) []Token
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(value string) []Token

func (f AnalyzerFunc) Analyze(value string) []Token { return f(value) }

// Standard is the default full-text analyzer.
var Standard Analyzer = AnalyzerFunc(Tokenize)

// Keyword indexes the entire value as a single token.
var Keyword Analyzer = AnalyzerFunc(func(value string) []Token {
	if value == "" {
		return nil
	}
	return []Token{{Text: value, EndChar: utf8.RuneCountInString(value), Boost: 1}}
})

// Space splits on whitespace without any normalisation.
var Space Analyzer = AnalyzerFunc(func(value string) []Token {
	return split(value, unicode.IsSpace)
})

// Comma splits on commas and trims surrounding whitespace.
var Comma Analyzer = AnalyzerFunc(func(value string) []Token {
	toks := split(value, func(r rune) bool { return r == ',' })
	out := toks[:0]
	for _, t := range toks {
		trimmed := strings.TrimSpace(t.Text)
		if trimmed == "" {
			continue
		}
		t.Text = trimmed
		t.Pos = len(out)
		out = append(out, t)
	}
	return out
})

// Delimited splits on whitespace and reads an optional "^boost" suffix on
// every word, e.g. "fox^2.5 dog".
var Delimited Analyzer = AnalyzerFunc(func(value string) []Token {
	toks := split(value, unicode.IsSpace)
	for i, t := range toks {
		idx := strings.LastIndexByte(t.Text, '^')
		if idx <= 0 {
			continue
		}
		if boost, err := strconv.ParseFloat(t.Text[idx+1:], 64); err == nil {
			toks[i].Text = strings.ToLower(t.Text[:idx])
			toks[i].Boost = boost
		}
	}
	return toks
})

// Ngram returns an analyzer emitting every n-gram with minSize <= n <= maxSize of
// the lower-cased value.
func Ngram(minSize, maxSize int) Analyzer {
	return AnalyzerFunc(func(value string) []Token {
		runes := []rune(strings.ToLower(value))
		var tokens []Token
		for start := 0; start < len(runes); start++ {
			for n := minSize; n <= maxSize && start+n <= len(runes); n++ {
				tokens = append(tokens, Token{
					Text:      string(runes[start : start+n]),
					Pos:       len(tokens),
					StartChar: start,
					EndChar:   start + n,
					Boost:     1,
				})
			}
		}
		return tokens
	})
}

// Lookup returns a named analyzer: standard, keyword, space, comma or
// delimited.
func Lookup(name string) (Analyzer, error) {
	switch strings.ToLower(name) {
	case "standard", "":
		return Standard, nil
	case "keyword":
		return Keyword, nil
	case "space":
		return Space, nil
	case "comma":
		return Comma, nil
	case "delimited":
		return Delimited, nil
	}
	return nil, fmt.Errorf("unknown analyzer %q", name)
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed.
func Tokenize(text string) []Token {
	words := split(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, w := range words {
		word := strings.ToLower(w.Text)
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := stem(word)
		if stemmed == "" {
			continue
		}
		w.Text = stemmed
		w.Pos = pos
		tokens = append(tokens, w)
		pos++
	}
	return tokens
}

// split cuts value at every rune matching sep and keeps rune offsets.
func split(value string, sep func(rune) bool) []Token {
	var tokens []Token
	start := -1
	var b strings.Builder
	i := 0
	for _, r := range value {
		if sep(r) {
			if start >= 0 {
				tokens = append(tokens, Token{Text: b.String(), Pos: len(tokens), StartChar: start, EndChar: i, Boost: 1})
				b.Reset()
				start = -1
			}
		} else {
			if start < 0 {
				start = i
			}
			b.WriteRune(r)
		}
		i++
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: b.String(), Pos: len(tokens), StartChar: start, EndChar: i, Boost: 1})
	}
	return tokens
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
