package attribute_test

import (
	"testing"

	"github.com/sidelinehq/sideline/internal/attribute"
)

func TestPhoneticScorer_MisheardName(t *testing.T) {
	t.Parallel()

	s := attribute.PhoneticScorer{}

	// "smyth" and "smith" share a Double Metaphone code, so the Jaro-Winkler
	// score passes through the phonetic gate.
	if got := s.Similarity("smith", "smyth"); got < 0.70 {
		t.Errorf("Similarity(smith, smyth) = %f, want >= 0.70", got)
	}
}

func TestPhoneticScorer_NoPhoneticOverlap(t *testing.T) {
	t.Parallel()

	s := attribute.PhoneticScorer{}

	// Unrelated words share no pronunciation and are not near-identical in
	// spelling, so the score is clamped to zero.
	if got := s.Similarity("alice", "defender"); got != 0 {
		t.Errorf("Similarity(alice, defender) = %f, want 0", got)
	}
}

func TestPhoneticScorer_ExactMatch(t *testing.T) {
	t.Parallel()

	s := attribute.PhoneticScorer{}
	if got := s.Similarity("cap", "cap"); got != 1.0 {
		t.Errorf("Similarity(cap, cap) = %f, want 1.0", got)
	}
}
