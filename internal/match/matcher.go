package match

import (
	"strings"
	"unicode/utf8"

	"github.com/jeefy/pybot/internal/models"
)

const (
	// MinScore is the floor a candidate must exceed to be picked at all.
	MinScore = 0.3
	// MinSimilarity is the floor for the fuzzy fallback; weaker scores count as zero.
	MinSimilarity = 0.6
)

// stylePrefixes are instruction lead-ins a front end may prepend to the question.
var stylePrefixes = []string{
	"please provide a detailed, comprehensive explanation:",
	"please provide a brief, concise answer:",
	"please explain in beginner-friendly terms with simple examples:",
	"please provide a detailed explanation:",
	"please explain simply:",
}

// StripStylePrefix removes the longest known style instruction s starts with.
// s must already be lowercased.
func StripStylePrefix(s string) string {
	best := ""
	for _, p := range stylePrefixes {
		if strings.HasPrefix(s, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return s
	}
	return strings.TrimSpace(s[len(best):])
}

// Normalize lowercases and trims input and drops any style instruction prefix.
func Normalize(input string) string {
	return StripStylePrefix(strings.ToLower(strings.TrimSpace(input)))
}

// Matcher picks the canned response closest to a user question.
type Matcher struct {
	scorer Scorer
}

// NewMatcher returns a Matcher using s for the fuzzy fallback. A nil scorer selects
// the longest-matching-blocks Ratio.
func NewMatcher(s Scorer) *Matcher {
	if s == nil {
		s = ScorerFunc(Ratio)
	}
	return &Matcher{scorer: s}
}

// BackendName identifies the matching strategy for status reporting.
func (m *Matcher) BackendName() string { return "Smart Pattern Matching" }

// Score rates one pattern against an already normalized input.
func (m *Matcher) Score(input, pattern string) float64 {
	switch {
	case input == pattern:
		return 1.0
	case strings.Contains(input, pattern):
		inLen := utf8.RuneCountInString(input)
		if inLen < 10 {
			inLen = 10
		}
		score := 0.8 + float64(utf8.RuneCountInString(pattern))/float64(inLen)*0.2
		if allWordsPresent(pattern, input) {
			score += 0.1
		}
		return score
	case strings.Contains(pattern, input):
		return 0.7
	}
	score := m.scorer.Score(pattern, input)
	if score < MinSimilarity {
		return 0
	}
	return score
}

// Best scans patterns in order and returns the highest scoring one. An exact match
// wins outright, even over a shorter pattern contained in the input whose
// containment score runs past 1. Among equal scores the earliest pattern wins. The
// reported score is capped at 1.
func (m *Matcher) Best(input string, patterns []models.PatternEntry) (models.MatchResult, bool) {
	clean := Normalize(input)
	best := -1
	bestScore := 0.0
	for i, p := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(p.Pattern))
		if pattern == clean {
			return result(p, 1.0), true
		}
		score := m.Score(clean, pattern)
		if score > bestScore && score > MinScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return models.MatchResult{}, false
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return result(patterns[best], bestScore), true
}

func result(p models.PatternEntry, score float64) models.MatchResult {
	return models.MatchResult{
		Pattern:  p.Pattern,
		Response: p.Response,
		Category: p.Category,
		Score:    score,
	}
}

func allWordsPresent(pattern, input string) bool {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(input) {
		words[w] = struct{}{}
	}
	for _, w := range strings.Fields(pattern) {
		if _, ok := words[w]; !ok {
			return false
		}
	}
	return true
}
