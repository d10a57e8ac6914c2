// Package style rewrites canned answers for the audience the client asked for.
package style

import "strings"

type Style string

const (
	Balanced Style = "balanced"
	Detailed Style = "detailed"
	Concise  Style = "concise"
	Beginner Style = "beginner"
)

// Parse maps a client supplied style name onto a Style. Anything unknown is Balanced.
func Parse(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case Detailed:
		return Detailed
	case Concise:
		return Concise
	case Beginner:
		return Beginner
	default:
		return Balanced
	}
}

func (s Style) String() string { return string(s) }

var detailedAddenda = map[string]string{
	"functions": "\n\n**Additional Details:**\n" +
		"• Functions can have default parameters: def greet(name='World'): return f'Hello {name}'\n" +
		"• Use *args for variable arguments: def sum_all(*args): return sum(args)\n" +
		"• Use **kwargs for keyword arguments: def info(**kwargs): print(kwargs)\n" +
		"• Functions are first-class objects and can be passed as arguments",
	"lists": "\n\n**Advanced List Operations:**\n" +
		"• List slicing: my_list[1:3] gets elements from index 1 to 2\n" +
		"• List comprehensions: [x*2 for x in range(5) if x % 2 == 0]\n" +
		"• Nested lists: matrix = [[1,2], [3,4]]\n" +
		"• List methods: .count(), .index(), .copy(), .clear()",
	"strings": "\n\n**String Advanced Features:**\n" +
		"• String slicing: text[1:5] gets substring from index 1 to 4\n" +
		"• Raw strings: r'C:\\path\\to\\file' (no escape sequences)\n" +
		"• Multi-line strings: '''Line 1\nLine 2\nLine 3'''\n" +
		"• String formatting: f'{name:>10}' (right-align in 10 chars)",
	"loops": "\n\n**Loop Advanced Concepts:**\n" +
		"• Loop with else: for/while loops can have else clause (runs if no break)\n" +
		"• Nested loops: for i in range(3): for j in range(3): print(i, j)\n" +
		"• Loop control: break (exit), continue (skip), pass (do nothing)\n" +
		"• Enumerate: for i, value in enumerate(list) gives index and value",
}

const genericAddendum = "\n\n**Pro Tip:** This is a fundamental Python concept. Practice with different examples to master it!"

var beginnerIntros = map[string]string{
	"functions":    "🔧 **Functions** are like recipes in cooking - they take ingredients (parameters) and create something (return value). ",
	"lists":        "📝 **Lists** are like shopping lists - you can add items, remove items, and check what's in them. ",
	"strings":      "📄 **Strings** are just text - like words in a book. You can join them, split them, and change them. ",
	"loops":        "🔄 **Loops** are like doing the same task multiple times - like washing dishes one by one. ",
	"variables":    "📦 **Variables** are like labeled boxes where you store things for later use. ",
	"dictionaries": "📚 **Dictionaries** are like phone books - you look up a name (key) to find a number (value). ",
}

const (
	genericIntro   = "🐍 **Python Concept:** "
	beginnerSuffix = "\n\n💡 **Remember:** Start simple and practice! Every expert was once a beginner. Try typing this code in Python to see how it works."
)

// codeHints mark a response as carrying an inline example worth keeping when shortened.
var codeHints = []string{"import", "def", "=", "print"}

// Apply rewrites response for style. category selects the addendum or intro, with a
// generic fallback for categories that have none.
func Apply(response string, s Style, category string) string {
	switch s {
	case Detailed:
		if add, ok := detailedAddenda[category]; ok {
			return response + add
		}
		return response + genericAddendum
	case Concise:
		return concise(response)
	case Beginner:
		intro, ok := beginnerIntros[category]
		if !ok {
			intro = genericIntro
		}
		return intro + response + beginnerSuffix
	default:
		return response
	}
}

func concise(response string) string {
	sentences := strings.Split(response, ". ")
	if len(sentences) < 2 {
		return response
	}
	core := sentences[0] + "."
	colon := strings.Index(response, ":")
	if colon < 0 || !containsAny(response, codeHints) {
		return core
	}
	example, _, _ := strings.Cut(response[colon:], ".")
	return core + " " + example + "."
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Default is the answer given when no pattern matches.
func Default(s Style) string {
	switch s {
	case Detailed:
		return "I'm here to provide comprehensive help with Python programming! I can explain topics in detail including: data structures (lists, dictionaries, sets, tuples), control flow (loops, conditionals), functions, classes, modules, error handling, file operations, and popular frameworks. I can also check your Python code for errors! What specific Python topic would you like to explore in depth?"
	case Concise:
		return "Ask me about Python: lists, functions, loops, variables, classes, modules, frameworks, or send code for error checking."
	case Beginner:
		return "🐍 Hi! I'm here to help you learn Python step-by-step! I can explain Python concepts in simple terms with easy examples. I can also check your Python code for errors and help you fix them! Try asking about: 'What is a variable?', 'How do lists work?', or 'What is a function?' - I'll explain everything clearly!"
	default:
		return "I'm here to help with Python programming! Try asking about strings, print(), lists, functions, loops, variables, frameworks, or send me Python code to check for errors."
	}
}
