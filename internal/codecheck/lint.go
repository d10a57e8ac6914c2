package codecheck

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Analysis holds line-level findings for a snippet. Issues are likely bugs, suggestions
// are style advice.
type Analysis struct {
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	LineCount   int      `json:"line_count"`
	Complexity  string   `json:"complexity"`
}

const maxLineLength = 79

// Analyze lints code line by line.
func Analyze(code string) Analysis {
	lines := strings.Split(code, "\n")
	a := Analysis{LineCount: len(lines), Complexity: Complexity(code)}

	for i, line := range lines {
		n := i + 1
		s := strings.TrimSpace(line)

		if strings.HasPrefix(s, "print ") {
			a.Issues = append(a.Issues, fmt.Sprintf("Line %d: Use print() function, not print statement (Python 3)", n))
		}
		if eq := strings.Count(line, "=="); eq > 0 && strings.Count(line, "=") > eq*2 {
			a.Issues = append(a.Issues, fmt.Sprintf("Line %d: Possible assignment (=) instead of comparison (==)", n))
		}
		if strings.HasSuffix(s, ":") && !indented(line) && n < len(lines) {
			if next := lines[n]; next != "" && !indented(next) {
				a.Issues = append(a.Issues, fmt.Sprintf("Line %d: Missing indentation after colon", n+1))
			}
		}
		if strings.Contains(line, "import") && strings.Contains(line, "*") {
			a.Suggestions = append(a.Suggestions, fmt.Sprintf("Line %d: Avoid 'import *' - import specific functions instead", n))
		}
		if l := utf8.RuneCountInString(line); l > maxLineLength {
			a.Suggestions = append(a.Suggestions, fmt.Sprintf("Line %d: Line too long (%d chars) - PEP 8 recommends max %d", n, l, maxLineLength))
		}
	}
	return a
}

func indented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

var complexityKeywords = []string{"if", "elif", "else", "for", "while", "try", "except", "with"}

// Complexity buckets the number of branching keywords in code. Keywords are counted as
// plain substrings, so "elif" also counts as an "if".
func Complexity(code string) string {
	n := 0
	for _, kw := range complexityKeywords {
		n += strings.Count(code, kw)
	}
	switch {
	case n <= 5:
		return "Low"
	case n <= 10:
		return "Medium"
	default:
		return "High"
	}
}
