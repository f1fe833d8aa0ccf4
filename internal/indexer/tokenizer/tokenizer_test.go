package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestTokenizeStemsAndDropsStopWords(t *testing.T) {
	tokens := Tokenize("The quick foxes jumped")
	require.Len(t, tokens, 3)
	assert.Equal(t, []string{"quick", "fox", "jump"}, texts(tokens))

	assert.Equal(t, 0, tokens[0].Pos)
	assert.Equal(t, 2, tokens[2].Pos)
	assert.Equal(t, 4, tokens[0].StartChar)
	assert.Equal(t, 9, tokens[0].EndChar)
	assert.Equal(t, 1.0, tokens[1].Boost)
}

func TestKeywordKeepsWholeValue(t *testing.T) {
	tokens := Keyword.Analyze("/a/b/c.txt")
	require.Len(t, tokens, 1)
	assert.Equal(t, "/a/b/c.txt", tokens[0].Text)
	assert.Empty(t, Keyword.Analyze(""))
}

func TestCommaTrimsAndRenumbers(t *testing.T) {
	tokens := Comma.Analyze(" go , search,, index ")
	assert.Equal(t, []string{"go", "search", "index"}, texts(tokens))
	assert.Equal(t, 2, tokens[2].Pos)
}

func TestDelimitedReadsBoosts(t *testing.T) {
	tokens := Delimited.Analyze("Fox^2.5 dog")
	require.Len(t, tokens, 2)
	assert.Equal(t, "fox", tokens[0].Text)
	assert.Equal(t, 2.5, tokens[0].Boost)
	assert.Equal(t, 1.0, tokens[1].Boost)
}

func TestNgram(t *testing.T) {
	tokens := Ngram(3, 4).Analyze("Hello")
	assert.Equal(t, []string{"hel", "hell", "ell", "ello", "llo"}, texts(tokens))
}

func TestLookup(t *testing.T) {
	a, err := Lookup("Comma")
	require.NoError(t, err)
	toks := a.Analyze("x, y")
	require.Len(t, toks, 2)
	assert.Equal(t, "y", toks[1].Text)

	_, err = Lookup("klingon")
	assert.Error(t, err)
}
