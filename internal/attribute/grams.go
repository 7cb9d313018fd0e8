package attribute

import (
	"strings"
	"unicode"
)

// Tokenize splits text on whitespace and punctuation after normalising it
// with [Normalize], dropping empty tokens. Hyphens, apostrophes, and other
// punctuation are treated as separators so "someone-else" tokenises to
// ["someone", "else"].
func Tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// NGrams produces, for every window length 1..maxN and every valid start
// offset, the space-joined phrase of that window:
//
//	NGrams([a b c], 3) → [a, b, c, "a b", "b c", "a b c"]
//
// Output order is increasing window length, then increasing start offset.
// The order is what makes tie-breaking in [Matcher.Attribute] deterministic.
// An empty token list yields an empty gram list.
func NGrams(tokens []string, maxN int) []string {
	if len(tokens) == 0 || maxN < 1 {
		return nil
	}
	var grams []string
	for n := 1; n <= maxN; n++ {
		for start := 0; start+n <= len(tokens); start++ {
			grams = append(grams, strings.Join(tokens[start:start+n], " "))
		}
	}
	return grams
}
