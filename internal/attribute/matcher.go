package attribute

import (
	"github.com/sidelinehq/sideline/pkg/types"
)

const (
	// DefaultThreshold is the minimum similarity score at which a roster
	// member is considered named by the transcript. Below it the feedback
	// fans out to the whole roster rather than being silently discarded —
	// the safer default for a coaching tool.
	DefaultThreshold = 0.70

	// maxGramTokens bounds candidate phrases at three tokens, enough to
	// cover "first last" and short nicknames with a stray token attached.
	maxGramTokens = 3
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold overrides [DefaultThreshold].
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithScorer replaces the default [DiceScorer] strategy.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.scorer = s
		}
	}
}

// Matcher picks, per transcript, the best-matching roster member above the
// confidence threshold. It is read-only after construction and safe for
// concurrent use.
type Matcher struct {
	scorer    Scorer
	threshold float64
}

// New returns a [Matcher] with the supplied options applied. Defaults:
// [DiceScorer] at [DefaultThreshold].
func New(opts ...Option) *Matcher {
	m := &Matcher{
		scorer:    DiceScorer{},
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Attribute matches transcriptText against the roster and returns the
// resulting [types.Attribution].
//
// Every 1..3-token gram of the transcript is scored against every candidate
// name of every roster member (first name, last name, nickname if present,
// all normalised). The single highest score wins; on ties the first member
// in roster order wins, so iteration is deterministic and stable. When the
// best score is below the threshold the attribution carries a nil Matched
// member, meaning the feedback applies to the whole roster. A degenerate
// empty transcript always yields nil at score 0.
func (m *Matcher) Attribute(transcriptText string, roster []types.RosterMember) types.Attribution {
	grams := NGrams(Tokenize(transcriptText), maxGramTokens)

	bestScore := 0.0
	bestIdx := -1
	for i := range roster {
		for _, name := range candidateNames(roster[i]) {
			for _, gram := range grams {
				// Strict greater-than keeps the earliest roster member on
				// equal scores.
				if s := m.scorer.Similarity(name, gram); s > bestScore {
					bestScore = s
					bestIdx = i
				}
			}
		}
	}

	if bestIdx >= 0 && bestScore >= m.threshold {
		member := roster[bestIdx]
		return types.Attribution{Matched: &member, Score: bestScore}
	}
	return types.Attribution{Score: bestScore}
}

// candidateNames returns the normalised name variants a member can be called
// by: first name, last name, and nickname when present. Empty fields are
// skipped.
func candidateNames(m types.RosterMember) []string {
	names := make([]string, 0, 3)
	for _, raw := range []string{m.FirstName, m.LastName, m.Nickname} {
		if n := Normalize(raw); n != "" {
			names = append(names, n)
		}
	}
	return names
}
