package codecheck

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxResult describes the first problem found in a snippet, if any.
type SyntaxResult struct {
	Valid      bool   `json:"valid"`
	ErrorType  string `json:"error_type,omitempty"`
	Message    string `json:"message"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

const (
	msgUnexpectedIndent = "unexpected indent"
	msgExpectedIndent   = "expected an indented block"
	msgUnindentMismatch = "unindent does not match any outer indentation level"
)

// CheckSyntax validates code as Python 3. Block structure is checked first, then the
// snippet is parsed with the tree-sitter Python grammar.
func CheckSyntax(ctx context.Context, code string) (SyntaxResult, error) {
	scan := scanIndentation(code)
	if e := scan.err; e != nil {
		return invalid(e.kind, e.msg, e.line, e.col), nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return SyntaxResult{}, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return describeParseError(root, code, scan), nil
	}
	if n := findNode(root, "print_statement"); n != nil {
		p := n.StartPoint()
		return invalid("SyntaxError", "Missing parentheses in call to 'print'. Did you mean print(...)?",
			int(p.Row)+1, int(p.Column)+1), nil
	}
	if n, msg := rejectedNode(root, src); n != nil {
		p := n.StartPoint()
		return invalid("SyntaxError", msg, int(p.Row)+1, int(p.Column)+1), nil
	}
	return SyntaxResult{Valid: true, Message: "Code syntax is valid!"}, nil
}

// rejectedNode finds constructs the grammar accepts but the Python compiler does not.
func rejectedNode(n *sitter.Node, src []byte) (*sitter.Node, string) {
	if n == nil {
		return nil, ""
	}
	switch n.Type() {
	case "argument_list":
		if bad, msg := misorderedArgument(n); bad != nil {
			return bad, msg
		}
	case "integer":
		if leadingZeros(n.Content(src)) {
			return n, "leading zeros in decimal integer literals are not permitted; use an 0o prefix for octal integers"
		}
	case "named_expression":
		if parent := n.Parent(); parent != nil {
			switch parent.Type() {
			case "expression_statement", "module", "block":
				return n, "invalid syntax, an assignment expression must be parenthesized here"
			}
		}
	case "string":
		if nonASCIIBytes(n.Content(src)) {
			return n, "bytes can only contain ASCII literal characters"
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if bad, msg := rejectedNode(n.NamedChild(i), src); bad != nil {
			return bad, msg
		}
	}
	return nil, ""
}

// misorderedArgument applies the call argument ordering rules: no positional
// argument after a keyword argument or **mapping, no *iterable after **mapping.
func misorderedArgument(args *sitter.Node) (*sitter.Node, string) {
	var keyword, mapping bool
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "comment":
		case "keyword_argument":
			keyword = true
		case "dictionary_splat":
			mapping = true
		case "list_splat":
			if mapping {
				return arg, "iterable argument unpacking follows keyword argument unpacking"
			}
		default:
			if mapping {
				return arg, "positional argument follows keyword argument unpacking"
			}
			if keyword {
				return arg, "positional argument follows keyword argument"
			}
		}
	}
	return nil, ""
}

// leadingZeros reports decimal literals such as 08 or 0_1.
func leadingZeros(lit string) bool {
	if len(lit) < 2 || lit[0] != '0' {
		return false
	}
	nonzero := false
	for _, c := range lit {
		switch {
		case c >= '1' && c <= '9':
			nonzero = true
		case c == '0' || c == '_':
		default:
			return false
		}
	}
	return nonzero
}

func nonASCIIBytes(lit string) bool {
	quote := strings.IndexAny(lit, `"'`)
	if quote < 0 || !strings.ContainsAny(lit[:quote], "bB") {
		return false
	}
	for i := quote; i < len(lit); i++ {
		if lit[i] >= 0x80 {
			return true
		}
	}
	return false
}

func invalid(kind, msg string, line, col int) SyntaxResult {
	return SyntaxResult{
		ErrorType:  kind,
		Message:    msg,
		Line:       line,
		Column:     col,
		Suggestion: SyntaxSuggestion(msg),
	}
}

func describeParseError(root *sitter.Node, code string, scan indentScan) SyntaxResult {
	bad := firstErrorNode(root)
	line, col, offset := 1, 1, uint32(0)
	if bad != nil {
		p := bad.StartPoint()
		line, col, offset = int(p.Row)+1, int(p.Column)+1, bad.StartByte()
	}

	// Nothing wrong until the input ran out: report the bracket left open.
	if int(offset) >= len(strings.TrimRight(code, " \t\r\n")) && scan.open != nil {
		msg := fmt.Sprintf("invalid syntax: unexpected EOF while parsing, '%c' was never closed", scan.open.ch)
		return invalid("SyntaxError", msg, scan.open.line, scan.open.col)
	}

	msg := fmt.Sprintf("invalid syntax at line %d, column %d", line, col)
	if bad != nil && bad.IsMissing() {
		msg += fmt.Sprintf(", expected '%s'", bad.Type())
	}
	if src := sourceLine(code, line); src != "" {
		msg += " in `" + src + "`"
	}
	return invalid("SyntaxError", msg, line, col)
}

// firstErrorNode returns the ERROR or MISSING node that starts earliest in the source.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil || !(n.HasError() || n.IsMissing()) {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	var best *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := firstErrorNode(n.Child(i))
		if c != nil && (best == nil || c.StartByte() < best.StartByte()) {
			best = c
		}
	}
	if best == nil {
		return n
	}
	return best
}

func findNode(n *sitter.Node, kind string) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == kind {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findNode(n.Child(i), kind); found != nil {
			return found
		}
	}
	return nil
}

func sourceLine(code string, line int) string {
	lines := strings.Split(code, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}

// SyntaxSuggestion maps a syntax error message onto a fix hint.
func SyntaxSuggestion(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "never closed"), strings.Contains(lower, "unterminated"),
		strings.Contains(lower, "unexpected eof"):
		return "Check for missing closing parentheses, brackets, or quotes"
	case strings.Contains(lower, "expected ':'"):
		return "Check if you need a colon (:) after if, for, while, def, or class statements"
	case strings.Contains(lower, "invalid syntax"):
		switch {
		case strings.Contains(lower, "eof"):
			return "Check for missing closing parentheses, brackets, or quotes"
		case strings.Contains(msg, ":"):
			return "Check if you need a colon (:) after if, for, while, def, or class statements"
		default:
			return "Check for typos, missing operators, or incorrect Python syntax"
		}
	case strings.Contains(lower, "unexpected indent"):
		return "Remove extra indentation or ensure consistent indentation"
	case strings.Contains(lower, "expected an indented block"):
		return "Add indentation (4 spaces) after colon (:) statements"
	case strings.Contains(lower, "unindent does not match"):
		return "Fix indentation to match the outer indentation level"
	default:
		return "Check Python syntax rules and fix the highlighted error"
	}
}

type indentError struct {
	kind, msg string
	line, col int
}

func indentErr(msg string, line, col int) *indentError {
	return &indentError{kind: "IndentationError", msg: msg, line: line, col: col}
}

// blockKeywords open a suite and must end their header with a colon.
var blockKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "for": true, "while": true, "def": true,
	"class": true, "try": true, "except": true, "finally": true, "with": true,
}

// clauseOpeners lists, for each continuation clause, the statements it may follow at
// the same indentation.
var clauseOpeners = map[string][]string{
	"elif":    {"if", "elif"},
	"else":    {"if", "elif", "for", "while", "try", "except"},
	"except":  {"try", "except"},
	"finally": {"try", "except", "else"},
}

// clauseWord returns the statement keyword a logical line starts with, ignoring an
// async prefix and the star of except*.
func clauseWord(line string) string {
	word := strings.TrimSpace(line)
	word = strings.TrimSpace(strings.TrimPrefix(word, "async "))
	if i := strings.IndexAny(word, " \t(:*"); i >= 0 {
		word = word[:i]
	}
	return word
}

func canFollow(clause, prev string) bool {
	for _, p := range clauseOpeners[clause] {
		if p == prev {
			return true
		}
	}
	return false
}

func headerKeyword(line string) string {
	word := strings.TrimSpace(line)
	if i := strings.IndexAny(word, " \t(:"); i >= 0 {
		word = word[:i]
	}
	if blockKeywords[word] {
		return word
	}
	return ""
}

type openBracket struct {
	ch        byte
	line, col int
}

type indentScan struct {
	err *indentError
	// open is the outermost bracket still unclosed at end of input.
	open *openBracket
}

// scanIndentation walks logical lines the way the Python tokenizer does and validates
// the indentation stack. Lines inside brackets, triple-quoted strings and backslash
// continuations do not start a new logical line.
func scanIndentation(code string) indentScan {
	var (
		stack        = []int{0}
		expectIndent bool
		st           lexState
		// header is the block keyword of the current logical line, if any.
		header     string
		headerLine int
		headerEnd  int
		// prevAt is the statement keyword of the last logical line at each indent.
		prevAt = map[int]string{}
	)
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lineNo := i + 1
		if !st.continues() {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			width := indentWidth(line)
			top := stack[len(stack)-1]
			switch {
			case expectIndent:
				if width <= top {
					return indentScan{err: indentErr(msgExpectedIndent, lineNo, width+1)}
				}
				stack = append(stack, width)
			case width > top && header != "":
				msg := fmt.Sprintf("invalid syntax: expected ':' after '%s' statement", header)
				return indentScan{err: &indentError{kind: "SyntaxError", msg: msg, line: headerLine, col: headerEnd + 1}}
			case width > top:
				return indentScan{err: indentErr(msgUnexpectedIndent, lineNo, width+1)}
			case width < top:
				for len(stack) > 1 && stack[len(stack)-1] > width {
					stack = stack[:len(stack)-1]
				}
				if stack[len(stack)-1] != width {
					return indentScan{err: indentErr(msgUnindentMismatch, lineNo, width+1)}
				}
			}
			expectIndent = false
			header, headerLine = headerKeyword(line), lineNo

			for w := range prevAt {
				if w > width {
					delete(prevAt, w)
				}
			}
			word := clauseWord(line)
			if _, ok := clauseOpeners[word]; ok && !canFollow(word, prevAt[width]) {
				msg := fmt.Sprintf("invalid syntax, '%s' without a matching block", word)
				return indentScan{err: &indentError{kind: "SyntaxError", msg: msg, line: lineNo, col: width + 1}}
			}
			prevAt[width] = word
		}
		last := st.feed(line, lineNo)
		if !st.continues() {
			expectIndent = last == ':'
			headerEnd = len(strings.TrimRight(line, " \t\r"))
		}
	}
	if expectIndent {
		return indentScan{err: indentErr(msgExpectedIndent, len(lines)+1, 1)}
	}
	scan := indentScan{}
	if len(st.brackets) > 0 {
		b := st.brackets[0]
		scan.open = &b
	}
	return scan
}

func indentWidth(line string) int {
	w := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			w++
		case '\t':
			w = (w/8 + 1) * 8
		case '\f':
			w = 0
		default:
			return w
		}
	}
	return w
}

// lexState carries what the tokenizer needs across physical lines.
type lexState struct {
	brackets  []openBracket
	quote     string
	backslash bool
}

func (s *lexState) continues() bool {
	return len(s.brackets) > 0 || s.quote != "" || s.backslash
}

// feed consumes one physical line and returns the last significant character outside
// strings and comments, or 0.
func (s *lexState) feed(line string, lineNo int) byte {
	var last byte
	s.backslash = false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if s.quote != "" {
			switch {
			case c == '\\':
				i++
			case strings.HasPrefix(line[i:], s.quote):
				i += len(s.quote) - 1
				s.quote = ""
				last = c
			}
			continue
		}
		switch c {
		case '#':
			return last
		case '"', '\'':
			q := string(c)
			if strings.HasPrefix(line[i:], strings.Repeat(q, 3)) {
				q = strings.Repeat(q, 3)
			}
			s.quote = q
			i += len(q) - 1
		case '(', '[', '{':
			s.brackets = append(s.brackets, openBracket{ch: c, line: lineNo, col: i + 1})
		case ')', ']', '}':
			if len(s.brackets) > 0 {
				s.brackets = s.brackets[:len(s.brackets)-1]
			}
		case '\\':
			if strings.TrimSpace(line[i+1:]) == "" {
				s.backslash = true
				return last
			}
		}
		if c != ' ' && c != '\t' && c != '\r' {
			last = c
		}
	}
	// single-quoted strings cannot span lines
	if len(s.quote) == 1 {
		s.quote = ""
	}
	return last
}
