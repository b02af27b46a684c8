// Package tokenizer is the analyzer shared by indexing and querying. Text is
// NFC-normalised, lower-cased and split on every rune that is not a letter or
// a digit. Empty tokens are dropped. There is no stemming and no stop-word
// list, so catalog codes and short brand names survive intact.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Token is a normalised term and its position within the analyzed text.
type Token struct {
	Term     string
	Position int
}

// Tokenize analyzes text into positioned tokens.
func Tokenize(text string) []Token {
	words := split(text)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}

// Terms analyzes text and returns only the token strings, in order.
func Terms(text string) []string {
	return split(text)
}

// Normalize returns the analyzed form of a single word: the concatenation of
// its tokens. Used where a caller needs one term per whitespace-separated
// word (prefix and fuzzy expansion).
func Normalize(word string) string {
	return strings.Join(split(word), "")
}

// Length is the rune length of an analyzed term.
func Length(term string) int {
	return utf8.RuneCountInString(term)
}

func split(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ToLower(norm.NFC.String(text))
	return strings.FieldsFunc(text, isSeparator)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
