package interview

import (
	"strings"
	"unicode/utf8"

	"interviewprep/internal/models"
)

// DefaultMinTranscriptChars is the eligibility floor for analysis.
const DefaultMinTranscriptChars = 50

// Classifier decides whether a terminated session goes to analysis.
type Classifier struct {
	MinChars int
}

// Classification is the typed output of the classify stage.
type Classification struct {
	Verdict models.Verdict
	Chars   int
}

// NewClassifier returns a classifier with the given floor; non-positive
// values fall back to DefaultMinTranscriptChars.
func NewClassifier(minChars int) Classifier {
	if minChars <= 0 {
		minChars = DefaultMinTranscriptChars
	}
	return Classifier{MinChars: minChars}
}

// Classify measures the trimmed transcript in characters.
func (c Classifier) Classify(text string) Classification {
	minChars := c.MinChars
	if minChars <= 0 {
		minChars = DefaultMinTranscriptChars
	}
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < minChars {
		return Classification{Verdict: models.VerdictTooShort, Chars: n}
	}
	return Classification{Verdict: models.VerdictEligible, Chars: n}
}
