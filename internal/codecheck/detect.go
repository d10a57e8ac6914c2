// Package codecheck inspects Python snippets found in chat messages: it extracts them,
// checks their syntax, lints them, runs them in a sandboxed interpreter and renders a
// report.
package codecheck

import (
	"regexp"
	"strings"
)

var codeIndicators = []string{
	"def ", "class ", "import ", "from ", "print(", "if ", "for ", "while ",
	"try:", "except:", "=", "==", "!=", "+=", "-=", "return ", "yield ",
	"[", "]", "{", "}", "()", "lambda ", "with ", "as ", "in ", "not ",
	"and ", "or ", "True", "False", "None",
}

// minIndicators is how many distinct indicators an unfenced message needs to look like code.
const minIndicators = 3

var fenceRe = regexp.MustCompile("(?s)```(?:python)?\\s*(.*?)\\s*```")

var codeLinePrefixes = []string{
	"def ", "class ", "import ", "from ", "if ", "for ", "while ", "try:", "print(",
}

// Detect reports whether message probably contains Python code.
func Detect(message string) bool {
	if strings.Contains(message, "```") {
		return true
	}
	n := 0
	for _, ind := range codeIndicators {
		if strings.Contains(message, ind) {
			n++
		}
	}
	return n >= minIndicators
}

// Extract returns the code in message. Fenced blocks win and are joined with newlines;
// without fences, trimmed lines that look like statements are collected. ok is false
// when nothing qualifies.
func Extract(message string) (code string, ok bool) {
	if blocks := fenceRe.FindAllStringSubmatch(message, -1); len(blocks) > 0 {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, b[1])
		}
		code = strings.Join(parts, "\n")
		return code, code != ""
	}

	var lines []string
	for _, line := range strings.Split(message, "\n") {
		s := strings.TrimSpace(line)
		if hasAnyPrefix(s, codeLinePrefixes) || strings.Contains(s, "=") || strings.Contains(s, "return ") {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
