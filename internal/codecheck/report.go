package codecheck

import (
	"strconv"
	"strings"

	"github.com/jeefy/pybot/internal/style"
)

// Report gathers everything learned about one snippet.
type Report struct {
	Code     string       `json:"code"`
	Syntax   SyntaxResult `json:"syntax"`
	Analysis Analysis     `json:"analysis"`
	Exec     *ExecResult  `json:"execution,omitempty"`
	Style    style.Style  `json:"style"`
}

// Render formats the report as the chat answer for the requested style.
func (r Report) Render() string {
	var parts []string
	add := func(s ...string) { parts = append(parts, s...) }

	if r.Syntax.Valid {
		add("✅ **Code Syntax Check: PASSED**")
		switch ex := r.Exec; {
		case ex == nil:
		case ex.Skipped:
			add("⚠️ **Code Execution: SKIPPED**", "**Reason:** "+ex.Error)
			if ex.Suggestion != "" {
				add("**Suggestion:** " + ex.Suggestion)
			}
		case ex.Success:
			add("✅ **Code Execution: SUCCESS**")
			if out := outputBlock(ex); out != "" {
				add("**Output:**\n```\n" + out + "\n```")
			}
		default:
			add("❌ **Code Execution: FAILED**")
			if out := outputBlock(ex); out != "" {
				add("**Output:**\n```\n" + out + "\n```")
			}
			add("**Error:** "+ex.Error, "**Suggestion:** "+ex.Suggestion)
		}
	} else {
		add("❌ **Code Syntax Check: FAILED**", "**Error:** "+r.Syntax.Message)
		if r.Syntax.Line > 0 {
			add("**Line:** " + strconv.Itoa(r.Syntax.Line))
		}
		add("**Suggestion:** " + r.Syntax.Suggestion)
	}

	if len(r.Analysis.Issues) > 0 {
		add("⚠️ **Issues Found:**")
		for _, issue := range r.Analysis.Issues {
			add("• " + issue)
		}
	}
	if len(r.Analysis.Suggestions) > 0 {
		add("💡 **Suggestions:**")
		for _, s := range r.Analysis.Suggestions {
			add("• " + s)
		}
	}
	add("**Code Complexity:** " + r.Analysis.Complexity)

	switch r.Style {
	case style.Beginner:
		parts = append([]string{"🔍 **Code Analysis Results:**"}, parts...)
		add("\n💡 **Learning Tip:** Code checking helps you write better Python! Keep practicing and learning from errors.")
	case style.Detailed:
		add("\n**Code Quality Tips:**",
			"• Follow PEP 8 style guidelines",
			"• Use meaningful variable names",
			"• Add comments for complex logic",
			"• Handle exceptions appropriately")
	}
	return strings.Join(parts, "\n")
}

func outputBlock(ex *ExecResult) string {
	out := strings.TrimRight(ex.Output, "\n")
	if out != "" && ex.Truncated {
		out += "\n... (output truncated)"
	}
	return out
}
