package match_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeefy/pybot/internal/match"
	"github.com/jeefy/pybot/internal/models"
	"github.com/jeefy/pybot/internal/store"
)

// Every built-in pattern asked verbatim must come back as itself, even when a
// shorter pattern it contains would otherwise outscore it.
func TestBestExactPatternWinsAcrossBuiltinCorpus(t *testing.T) {
	entries, err := store.BuiltinCorpus()
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// the earliest entry with a given pattern is the one that must win
	first := make(map[string]int)
	for i, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Pattern))
		if _, ok := first[key]; !ok {
			first[key] = i
		}
	}

	m := match.NewMatcher(nil)
	for key, idx := range first {
		want := entries[idx]
		for _, input := range []string{key, strings.ToUpper(key), "  " + key + "  "} {
			got, ok := m.Best(input, entries)
			if !ok {
				t.Fatalf("Best(%q) found no match", input)
			}
			assert.Equal(t, want.Response, got.Response, "input %q matched %q", input, got.Pattern)
			assert.InDelta(t, 1.0, got.Score, 1e-9, "input %q", input)
		}
	}
}

func TestBestExactBeatsContainedShorterPattern(t *testing.T) {
	entries := []models.PatternEntry{
		{Pattern: "comprehension", Response: "short", Category: "advanced"},
		{Pattern: "list comprehension", Response: "long", Category: "advanced"},
	}
	got, ok := match.NewMatcher(nil).Best("List Comprehension", entries)
	require.True(t, ok)
	assert.Equal(t, "long", got.Response)
	assert.Equal(t, 1.0, got.Score)
}
