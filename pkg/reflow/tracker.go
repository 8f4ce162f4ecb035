package reflow

import (
	"regexp"
	"slices"
	"strings"
)

// DefaultPreservedEnvironments are environments whose internal line breaks are
// significant: verbatim-like, display math, tabular-like and lists.
var DefaultPreservedEnvironments = []string{
	"verbatim", "Verbatim", "lstlisting", "minted",
	"align", "align*", "equation", "equation*", "gather", "gather*", "multline", "multline*",
	"tikzpicture", "tikz", "figure", "table", "tabular",
	"matrix", "pmatrix", "bmatrix", "cases",
	"itemize", "enumerate", "description", "quote",
}

var envTokenRe = regexp.MustCompile(`\\(begin|end)\{([^}]*)\}`)

// Tracker follows the environment stack and display-math state of one
// document as its lines are consumed in order.
//
// The merge engine does not consult the tracker when deciding joins. Lines
// inside a preserved environment stay subject to the ordinary per-line rules;
// the tracker only records where that happens.
type Tracker struct {
	preserved       map[string]struct{}
	stack           []string
	inDisplayMath   bool // \[ ... \]
	inDollarMath    bool // $$ ... $$
	unmatchedCloses int
}

// NewTracker returns an empty tracker. preserved lists the environment names
// to treat as preserved; nil means DefaultPreservedEnvironments.
func NewTracker(preserved []string) *Tracker {
	if preserved == nil {
		preserved = DefaultPreservedEnvironments
	}
	set := make(map[string]struct{}, len(preserved))
	for _, name := range preserved {
		set[strings.TrimSpace(name)] = struct{}{}
	}
	return &Tracker{preserved: set}
}

// Note consumes one line, updating the environment stack and math flags.
// Anything after an unescaped comment marker is ignored.
func (t *Tracker) Note(line Line) {
	code := string(line)
	if idx := unescapedIndex(code, CommentMarker); idx >= 0 {
		code = code[:idx]
	}

	for _, m := range envTokenRe.FindAllStringSubmatch(code, -1) {
		name := strings.TrimSpace(m[2])
		if m[1] == "begin" {
			t.stack = append(t.stack, name)
			continue
		}
		t.pop(name)
	}
	t.scanMath(code)
}

// pop removes the innermost open environment called name, discarding anything
// opened after it. A close with no matching open is counted and otherwise ignored.
func (t *Tracker) pop(name string) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == name {
			t.stack = t.stack[:i]
			return
		}
	}
	t.unmatchedCloses++
}

// scanMath toggles display-math state for \[, \] and $$, skipping escaped
// backslashes so that `\\[2pt]` is read as a line break.
func (t *Tracker) scanMath(code string) {
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '\\':
			if i+1 >= len(code) {
				return
			}
			switch code[i+1] {
			case '[':
				t.inDisplayMath = true
			case ']':
				t.inDisplayMath = false
			}
			i++
		case '$':
			if i+1 < len(code) && code[i+1] == '$' {
				t.inDollarMath = !t.inDollarMath
				i++
			}
		}
	}
}

// Depth returns the number of open environments.
func (t *Tracker) Depth() int { return len(t.stack) }

// Open returns a copy of the open environment stack, outermost first.
func (t *Tracker) Open() []string { return slices.Clone(t.stack) }

// InPreserved reports whether any open environment is preserved.
func (t *Tracker) InPreserved() bool {
	for _, name := range t.stack {
		if _, ok := t.preserved[name]; ok {
			return true
		}
	}
	return false
}

// InDisplayMath reports whether a \[ or $$ display block is open.
func (t *Tracker) InDisplayMath() bool { return t.inDisplayMath || t.inDollarMath }

// UnmatchedCloses returns how many \end tokens had no open partner.
func (t *Tracker) UnmatchedCloses() int { return t.unmatchedCloses }
