package attribute

// Scorer computes a normalised closeness between two already-normalised
// strings.
//
// Implementations must be pure and uphold the scoring contract:
//
//   - the result is in [0.0, 1.0]
//   - Similarity(a, b) == Similarity(b, a)
//   - Similarity(a, a) == 1.0 for any non-empty a
//   - Similarity("", "") == 0.0 — empty strings never match anything
//
// The matching algorithm is a replaceable strategy: [DiceScorer] is the
// default, [PhoneticScorer] an alternative tuned for misheard names.
type Scorer interface {
	Similarity(a, b string) float64
}

// DiceScorer scores with the Sørensen–Dice coefficient over the multisets of
// character bigrams of the two inputs:
//
//	2·|bigrams(a) ∩ bigrams(b)| / (|bigrams(a)| + |bigrams(b)|)
//
// Strings shorter than two characters carry no bigrams and fall back to
// exact-match scoring (1.0 if equal, else 0.0). The scorer is deterministic
// and needs no model or network, so it runs fully offline on-device.
type DiceScorer struct{}

// Similarity implements [Scorer].
func (DiceScorer) Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		if a == b {
			return 1
		}
		return 0
	}

	counts := bigramCounts(ra)
	overlap := 0
	for i := 0; i+2 <= len(rb); i++ {
		bg := string(rb[i : i+2])
		if counts[bg] > 0 {
			counts[bg]--
			overlap++
		}
	}

	total := (len(ra) - 1) + (len(rb) - 1)
	return 2 * float64(overlap) / float64(total)
}

// bigramCounts returns the multiset of adjacent rune pairs in rs.
func bigramCounts(rs []rune) map[string]int {
	counts := make(map[string]int, len(rs))
	for i := 0; i+2 <= len(rs); i++ {
		counts[string(rs[i:i+2])]++
	}
	return counts
}
