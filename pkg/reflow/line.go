package reflow

import (
	"strings"
	"unicode"
)

// Line is one source line without its terminator.
// Lines are never mutated in place; merging produces a new Line.
type Line string

// Stripped returns the line with leading and trailing whitespace removed.
// All classification works on this form.
func (l Line) Stripped() string {
	return strings.TrimSpace(string(l))
}

// IsBlank reports whether the line contains only whitespace.
func (l Line) IsBlank() bool {
	return l.Stripped() == ""
}

// TrailingBackslashes returns the length of the backslash run at the end of
// the line, ignoring trailing whitespace.
// An even run ends in the `\\` line break, an odd run in a control symbol.
func (l Line) TrailingBackslashes() int {
	s := strings.TrimRightFunc(string(l), unicode.IsSpace)
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

// join appends next to l, trimming the whitespace at the seam.
func (l Line) join(next Line, joiner string) Line {
	return Line(strings.TrimRightFunc(string(l), unicode.IsSpace) + joiner + strings.TrimLeftFunc(string(next), unicode.IsSpace))
}

// toLines converts raw strings to Lines.
func toLines(raw []string) []Line {
	lines := make([]Line, len(raw))
	for i, s := range raw {
		lines[i] = Line(s)
	}
	return lines
}

// fromLines converts Lines back to raw strings.
func fromLines(lines []Line) []string {
	raw := make([]string, len(lines))
	for i, l := range lines {
		raw[i] = string(l)
	}
	return raw
}
