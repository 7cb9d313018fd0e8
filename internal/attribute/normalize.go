// Package attribute decides which roster member(s) a piece of spoken
// feedback applies to.
//
// Raw speech-to-text output is rarely a clean match for roster names —
// "Alice" may come back as "alice," mid-sentence, "Søren" loses its
// diacritic, and nicknames get mangled. The package therefore works on
// normalised text only: [Normalize] folds diacritics and case, [Tokenize]
// and [NGrams] turn a transcript into 1..3-token phrase candidates, and a
// [Scorer] ranks each candidate against every roster name. [Matcher.Attribute]
// combines the stages and applies the confidence threshold.
//
// Everything in this package is pure and synchronous: no I/O, no clocks, no
// randomness. For fixed inputs the outputs are always identical, which is
// what makes the pipeline's matching step independently unit-testable.
package attribute

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds diacritics and lower-cases s so that roster names and
// transcript tokens compare symmetrically ("Søren" → "soren"). It always
// returns a string, possibly empty; on a malformed input the lower-cased
// original is returned unchanged rather than an error.
func Normalize(s string) string {
	// The transform chain carries internal buffers, so it is built per call
	// rather than shared between goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
