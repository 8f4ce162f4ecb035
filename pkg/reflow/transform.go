package reflow

import (
	"log/slog"
	"strings"
)

// Config holds the settings that change reflow output.
type Config struct {
	// DeleteNewline joins lines with no separator instead of a single space.
	DeleteNewline bool
	// ExtraBlockCommands extends DefaultBlockCommands.
	ExtraBlockCommands []string
	// ExtraPreservedEnvironments extends DefaultPreservedEnvironments.
	ExtraPreservedEnvironments []string
}

// Stats describes what one transformation did.
type Stats struct {
	LinesIn          int      `json:"linesIn" yaml:"linesIn"`
	LinesOut         int      `json:"linesOut" yaml:"linesOut"`
	Joins            int      `json:"joins" yaml:"joins"`
	Paragraphs       int      `json:"paragraphs" yaml:"paragraphs"`
	Separators       int      `json:"separators" yaml:"separators"`
	JoinsInPreserved int      `json:"joinsInPreserved" yaml:"joinsInPreserved"`
	OpenEnvironments []string `json:"openEnvironments,omitempty" yaml:"openEnvironments,omitempty"`
	UnmatchedCloses  int      `json:"unmatchedCloses" yaml:"unmatchedCloses"`
	DisplayMathOpen  bool     `json:"displayMathOpen" yaml:"displayMathOpen"`
	CRLF             bool     `json:"crlf" yaml:"crlf"`
	TrailingNewline  bool     `json:"trailingNewline" yaml:"trailingNewline"`
}

// Changed reports whether the transformation merged anything.
func (s Stats) Changed() bool { return s.Joins > 0 }

// Warnings lists structural oddities worth surfacing to the user.
// None of them stop the transformation.
func (s Stats) Warnings() []string {
	var w []string
	if len(s.OpenEnvironments) > 0 {
		w = append(w, "unclosed environments: "+strings.Join(s.OpenEnvironments, ", "))
	}
	if s.UnmatchedCloses > 0 {
		w = append(w, "unmatched \\end tokens present")
	}
	if s.DisplayMathOpen {
		w = append(w, "display math left open at end of document")
	}
	return w
}

// Reflower turns soft-wrapped lines into logical paragraph lines.
// It is immutable and safe for concurrent use; each call gets its own tracker.
type Reflower struct {
	classifier *Classifier
	merger     *Merger
	preserved  []string
}

// New builds a Reflower from cfg.
func New(cfg Config) *Reflower {
	classifier := NewClassifier(cfg.ExtraBlockCommands...)
	preserved := append(append([]string{}, DefaultPreservedEnvironments...), cfg.ExtraPreservedEnvironments...)
	return &Reflower{
		classifier: classifier,
		merger:     NewMerger(classifier, cfg.DeleteNewline),
		preserved:  preserved,
	}
}

// WithLogger returns a copy of r whose merge decisions are logged at debug
// level through logger. The copy shares the rule tables with r.
func (r *Reflower) WithLogger(logger *slog.Logger) *Reflower {
	c := *r
	c.merger = r.merger.WithLogger(logger)
	return &c
}

// TransformLines reflows a document given as lines without terminators.
// Blank lines come back verbatim in their original positions.
func (r *Reflower) TransformLines(lines []string) ([]string, Stats) {
	out, _, stats := r.transform(toLines(lines))
	return fromLines(out), stats
}

// transform also returns, for every output line, the index of the last input
// line it was built from.
func (r *Reflower) transform(in []Line) ([]Line, []int, Stats) {
	tracker := NewTracker(r.preserved)
	out := make([]Line, 0, len(in))
	src := make([]int, 0, len(in))
	stats := Stats{LinesIn: len(in)}

	pos := 0
	for _, seg := range SplitParagraphs(in) {
		if seg.Kind == SegmentSeparator {
			for range seg.Lines {
				src = append(src, pos)
				pos++
			}
			out = append(out, seg.Lines...)
			stats.Separators += len(seg.Lines)
			continue
		}
		stats.Paragraphs++
		res := r.merger.mergeParagraph(seg.Lines, tracker, pos+1)
		out = append(out, res.Lines...)
		for _, end := range res.Ends {
			src = append(src, pos+end)
		}
		pos += len(seg.Lines)
		stats.Joins += res.Joins
		stats.JoinsInPreserved += res.JoinsInPreserved
	}

	stats.LinesOut = len(out)
	stats.OpenEnvironments = tracker.Open()
	stats.UnmatchedCloses = tracker.UnmatchedCloses()
	stats.DisplayMathOpen = tracker.InDisplayMath()
	return out, src, stats
}

// Transform reflows a whole document. Every output line keeps the terminator
// of the last source line it was built from, so lines that were not merged
// come back byte for byte, whatever mix of LF and CRLF the source uses. The
// output has a trailing terminator only if the source had one.
func (r *Reflower) Transform(text string) (string, Stats) {
	lines, eols := splitDocument(text)
	out, src, stats := r.transform(toLines(lines))
	stats.CRLF = len(eols) > 0 && eols[0] == "\r\n"
	stats.TrailingNewline = len(eols) > 0 && eols[len(eols)-1] != ""

	var b strings.Builder
	b.Grow(len(text))
	for i, l := range out {
		b.WriteString(string(l))
		b.WriteString(eols[src[i]])
	}
	return b.String(), stats
}

// Transform is a convenience wrapper around New(cfg).Transform(text).
func Transform(text string, cfg Config) (string, Stats) {
	return New(cfg).Transform(text)
}

// splitDocument breaks text into lines and their terminators ("\n", "\r\n",
// or "" for a final line without one).
func splitDocument(text string) (lines []string, eols []string) {
	if text == "" {
		return nil, nil
	}
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = strings.TrimSuffix(text, "\n")
	}
	lines = strings.Split(text, "\n")
	eols = make([]string, len(lines))
	for i, l := range lines {
		eols[i] = "\n"
		if strings.HasSuffix(l, "\r") {
			lines[i] = strings.TrimSuffix(l, "\r")
			eols[i] = "\r\n"
		}
	}
	if !trailing {
		last := len(lines) - 1
		// A lone CR at the very end is content, not a terminator.
		if eols[last] == "\r\n" {
			lines[last] += "\r"
		}
		eols[last] = ""
	}
	return lines, eols
}
