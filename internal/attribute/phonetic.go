package attribute

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyFloor is the minimum Jaro-Winkler score accepted when the two strings
// share no Double Metaphone code. Without a shared pronunciation the spelling
// has to be near-identical before a score is reported at all.
const fuzzyFloor = 0.85

// PhoneticScorer is an alternative [Scorer] for rosters whose names are
// frequently misheard by the transcription engine. It gates Jaro-Winkler
// similarity on Double Metaphone overlap: when any phonetic code of one
// string matches any code of the other, the Jaro-Winkler score is used
// directly; otherwise scores below [fuzzyFloor] are clamped to zero.
//
// The scorer satisfies the same contract as [DiceScorer] and is selectable
// via the attribution.scorer config key.
type PhoneticScorer struct{}

// Similarity implements [Scorer].
func (PhoneticScorer) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	jw := matchr.JaroWinkler(a, b, false)
	if phoneticOverlap(a, b) {
		return jw
	}
	if jw >= fuzzyFloor {
		return jw
	}
	return 0
}

// phoneticOverlap reports whether any Double Metaphone code of any token of
// a matches any code of any token of b. Multi-token phrases ("alice smith")
// overlap when any token pair does.
func phoneticOverlap(a, b string) bool {
	codesA := metaphoneCodes(strings.Fields(a))
	if len(codesA) == 0 {
		return false
	}
	for _, token := range strings.Fields(b) {
		primary, secondary := matchr.DoubleMetaphone(token)
		if primary != "" {
			if _, ok := codesA[primary]; ok {
				return true
			}
		}
		if secondary != "" {
			if _, ok := codesA[secondary]; ok {
				return true
			}
		}
	}
	return false
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens,
// excluding empty codes (produced for very short or vowel-only words).
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}
