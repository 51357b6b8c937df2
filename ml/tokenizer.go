package ml

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type Tokenizer struct {
	NGramMax int `json:"ngram_max"`
}

func (t Tokenizer) normalize(text string) string {
	// Casers are stateful, so one per call.
	return cases.Fold().String(norm.NFKC.String(text))
}

// Words splits on anything that is not a letter or digit and drops
// single-rune tokens.
func (t Tokenizer) Words(text string) []string {
	fields := strings.FieldsFunc(t.normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) >= 2 {
			words = append(words, f)
		}
	}
	return words
}

// Tokens returns words plus contiguous n-grams up to NGramMax.
func (t Tokenizer) Tokens(text string) []string {
	words := t.Words(text)
	n := t.NGramMax
	if n <= 1 {
		return words
	}
	tokens := make([]string, 0, len(words)*n)
	tokens = append(tokens, words...)
	for size := 2; size <= n; size++ {
		for i := 0; i+size <= len(words); i++ {
			tokens = append(tokens, strings.Join(words[i:i+size], " "))
		}
	}
	return tokens
}
