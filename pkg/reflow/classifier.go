package reflow

import (
	"regexp"
	"strings"
)

// CommentMarker starts a comment that runs to the end of the line.
const CommentMarker = '%'

// DefaultBlockCommands are the command names that must occupy their own line.
// Sectioning, list items, floats and title metadata all live here.
var DefaultBlockCommands = []string{
	"section", "subsection", "subsubsection", "chapter", "paragraph", "subparagraph",
	"begin", "end", "maketitle", "tableofcontents", "noindent", "label", "caption",
	"includegraphics", "centering", "item",
	"title", "author", "date",
}

var envDelimiterRe = regexp.MustCompile(`\\(?:begin|end)\{[^}]*\}`)

// Class is a bitset of the structural categories a line falls into.
type Class uint8

const (
	ClassComment Class = 1 << iota
	ClassUnescapedComment
	ClassBlockOpener
	ClassEnvironmentDelimiter
	ClassContinuationUnsafe
	// ClassTrailingBackslash marks a line ending in a backslash run: the `\\`
	// break for an even run, a control symbol for an odd one.
	ClassTrailingBackslash
)

// ClassPlain is the zero class: ordinary joinable prose.
const ClassPlain Class = 0

var classNames = []struct {
	c    Class
	name string
}{
	{ClassComment, "comment"},
	{ClassUnescapedComment, "unescaped-comment"},
	{ClassBlockOpener, "block-opener"},
	{ClassEnvironmentDelimiter, "environment-delimiter"},
	{ClassContinuationUnsafe, "continuation-unsafe"},
	{ClassTrailingBackslash, "trailing-backslash"},
}

// Has reports whether every bit of other is set in c.
func (c Class) Has(other Class) bool { return c&other == other && other != 0 }

// String renders the class as a "|"-separated list, or "plain".
func (c Class) String() string {
	if c == ClassPlain {
		return "plain"
	}
	var parts []string
	for _, n := range classNames {
		if c.Has(n.c) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Classifier answers structural questions about single lines.
// It holds the block-command set; everything else is fixed syntax.
// A Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	blockCommands map[string]struct{}
}

// NewClassifier builds a classifier over DefaultBlockCommands plus extra.
// Leading backslashes and surrounding space in extra names are ignored.
func NewClassifier(extra ...string) *Classifier {
	set := make(map[string]struct{}, len(DefaultBlockCommands)+len(extra))
	for _, name := range DefaultBlockCommands {
		set[name] = struct{}{}
	}
	for _, name := range extra {
		name = strings.TrimPrefix(strings.TrimSpace(name), `\`)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return &Classifier{blockCommands: set}
}

// HasUnescapedMarker reports whether marker occurs in line with an even
// number of backslashes directly in front of it.
func HasUnescapedMarker(line string, marker byte) bool {
	return unescapedIndex(line, marker) >= 0
}

// unescapedIndex returns the byte offset of the first unescaped marker, or -1.
func unescapedIndex(line string, marker byte) int {
	from := 0
	for {
		idx := strings.IndexByte(line[from:], marker)
		if idx < 0 {
			return -1
		}
		idx += from
		backslashes := 0
		for j := idx - 1; j >= 0 && line[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return idx
		}
		from = idx + 1
	}
}

// IsCommentLine reports whether the stripped line starts with the comment marker.
func (c *Classifier) IsCommentLine(line Line) bool {
	return strings.HasPrefix(line.Stripped(), string(CommentMarker))
}

// HasUnescapedComment reports whether the line carries a live comment anywhere.
func (c *Classifier) HasUnescapedComment(line Line) bool {
	return HasUnescapedMarker(string(line), CommentMarker)
}

// CommandName returns the name of the command the stripped form starts with,
// e.g. "section" for `\section*{Intro}`. It returns "" when the line does not
// start with a letter command.
func CommandName(stripped string) string {
	if !strings.HasPrefix(stripped, `\`) {
		return ""
	}
	end := 1
	for end < len(stripped) && isCommandLetter(stripped[end]) {
		end++
	}
	return stripped[1:end]
}

func isCommandLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '@'
}

// IsBlockCommand reports whether name is in the block-command set.
func (c *Classifier) IsBlockCommand(name string) bool {
	_, ok := c.blockCommands[name]
	return ok
}

// IsBlockOpener reports whether the line must stand alone: a block command,
// a display-math bracket, a `$$` delimiter or an inline-math bracket at line start.
func (c *Classifier) IsBlockOpener(line Line) bool {
	s := line.Stripped()
	if !strings.HasPrefix(s, `\`) && !strings.HasPrefix(s, "$$") {
		return false
	}
	if name := CommandName(s); name != "" && c.IsBlockCommand(name) {
		return true
	}
	switch {
	case strings.HasPrefix(s, `\[`), s == `\]`:
		return true
	case strings.HasPrefix(s, "$$"), strings.HasPrefix(s, `\(`), strings.HasPrefix(s, `\)`):
		return true
	}
	return false
}

// IsEnvironmentDelimiter reports whether the line contains a \begin{...} or
// \end{...} token at any position.
func (c *Classifier) IsEnvironmentDelimiter(line Line) bool {
	return envDelimiterRe.MatchString(string(line))
}

// IsContinuationUnsafe reports whether a stripped line must start a new output
// line: it opens with a closing brace, a column separator or a command.
func (c *Classifier) IsContinuationUnsafe(stripped string) bool {
	if stripped == "" {
		return false
	}
	switch stripped[0] {
	case '}', '&', '\\':
		return true
	}
	return false
}

// Classify returns every category the line falls into.
func (c *Classifier) Classify(line Line) Class {
	var class Class
	if c.IsCommentLine(line) {
		class |= ClassComment
	}
	if c.HasUnescapedComment(line) {
		class |= ClassUnescapedComment
	}
	if c.IsBlockOpener(line) {
		class |= ClassBlockOpener
	}
	if c.IsEnvironmentDelimiter(line) {
		class |= ClassEnvironmentDelimiter
	}
	if c.IsContinuationUnsafe(line.Stripped()) {
		class |= ClassContinuationUnsafe
	}
	if line.TrailingBackslashes() > 0 {
		class |= ClassTrailingBackslash
	}
	return class
}
