package reflow

import "log/slog"

// Decision is the verdict for one accumulator/candidate pair.
type Decision int

const (
	KeepSeparate Decision = iota
	JoinWithSpace
	JoinWithoutSpace
)

func (d Decision) String() string {
	switch d {
	case JoinWithSpace:
		return "join-with-space"
	case JoinWithoutSpace:
		return "join-without-space"
	default:
		return "keep-separate"
	}
}

// ruleSide names which line of the pair a rule inspects.
type ruleSide int

const (
	sideCandidate ruleSide = iota
	sideAccumulator
)

// rule forbids joining when its predicate holds for the inspected line.
type rule struct {
	name  string
	side  ruleSide
	holds func(c *Classifier, l Line) bool
}

// mergeRules is evaluated top to bottom; the first rule that holds keeps the
// pair separate. Order matters only for which name gets reported.
var mergeRules = []rule{
	{"candidate-comment-line", sideCandidate, (*Classifier).IsCommentLine},
	{"candidate-unescaped-comment", sideCandidate, (*Classifier).HasUnescapedComment},
	{"candidate-block-opener", sideCandidate, (*Classifier).IsBlockOpener},
	{"candidate-environment-delimiter", sideCandidate, (*Classifier).IsEnvironmentDelimiter},
	{"candidate-continuation-unsafe", sideCandidate, func(c *Classifier, l Line) bool {
		return c.IsContinuationUnsafe(l.Stripped())
	}},
	{"accumulator-block-opener", sideAccumulator, (*Classifier).IsBlockOpener},
	{"accumulator-environment-delimiter", sideAccumulator, (*Classifier).IsEnvironmentDelimiter},
	{"accumulator-trailing-backslash", sideAccumulator, func(_ *Classifier, l Line) bool {
		return l.TrailingBackslashes() > 0
	}},
	{"accumulator-unescaped-comment", sideAccumulator, (*Classifier).HasUnescapedComment},
}

// Verdict pairs a Decision with the rule that produced it.
// Rule is "join" when no rule fired.
type Verdict struct {
	Decision Decision
	Rule     string
}

// Merger applies the merge rules to paragraphs.
type Merger struct {
	classifier    *Classifier
	deleteNewline bool
	logger        *slog.Logger // nil disables decision logging
}

// NewMerger returns a merger. With deleteNewline set, joined lines are
// concatenated without a space.
func NewMerger(classifier *Classifier, deleteNewline bool) *Merger {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Merger{classifier: classifier, deleteNewline: deleteNewline}
}

// WithLogger returns a copy of m that logs every kept-separate decision at
// debug level. A nil logger turns logging off.
func (m *Merger) WithLogger(logger *slog.Logger) *Merger {
	c := *m
	c.logger = logger
	return &c
}

// Decide returns the verdict for appending cur to acc.
func (m *Merger) Decide(acc, cur Line) Verdict {
	for _, r := range mergeRules {
		subject := cur
		if r.side == sideAccumulator {
			subject = acc
		}
		if r.holds(m.classifier, subject) {
			return Verdict{Decision: KeepSeparate, Rule: r.name}
		}
	}
	if m.deleteNewline {
		return Verdict{Decision: JoinWithoutSpace, Rule: "join"}
	}
	return Verdict{Decision: JoinWithSpace, Rule: "join"}
}

// MergeResult carries the merged lines of one paragraph and what happened.
type MergeResult struct {
	Lines []Line
	// Ends[i] is the index in the paragraph of the last source line folded
	// into Lines[i].
	Ends             []int
	Joins            int
	JoinsInPreserved int
}

// MergeParagraph merges one paragraph left to right with a single-line
// accumulator. tracker may be nil; when set, every line is noted in order
// and joins made inside preserved environments are counted.
func (m *Merger) MergeParagraph(paragraph []Line, tracker *Tracker) MergeResult {
	return m.mergeParagraph(paragraph, tracker, 1)
}

// mergeParagraph is MergeParagraph for a paragraph whose first line is
// document line firstLine (1-based), used in log records.
func (m *Merger) mergeParagraph(paragraph []Line, tracker *Tracker, firstLine int) MergeResult {
	res := MergeResult{
		Lines: make([]Line, 0, len(paragraph)),
		Ends:  make([]int, 0, len(paragraph)),
	}
	var acc Line
	hasAcc := false

	for i, cur := range paragraph {
		if !hasAcc {
			acc, hasAcc = cur, true
			noteLine(tracker, cur)
			continue
		}

		v := m.Decide(acc, cur)
		switch v.Decision {
		case KeepSeparate:
			m.logKept(v, cur, firstLine+i, tracker)
			res.Lines = append(res.Lines, acc)
			res.Ends = append(res.Ends, i-1)
			acc = cur
		case JoinWithSpace:
			acc = acc.join(cur, " ")
			res.Joins++
		case JoinWithoutSpace:
			acc = acc.join(cur, "")
			res.Joins++
		}
		if v.Decision != KeepSeparate && tracker != nil && tracker.InPreserved() {
			res.JoinsInPreserved++
		}
		noteLine(tracker, cur)
	}
	if hasAcc {
		res.Lines = append(res.Lines, acc)
		res.Ends = append(res.Ends, len(paragraph)-1)
	}
	return res
}

func (m *Merger) logKept(v Verdict, cur Line, lineNo int, tracker *Tracker) {
	if m.logger == nil {
		return
	}
	attrs := []any{
		slog.Int("line", lineNo),
		slog.String("rule", v.Rule),
		slog.String("class", m.classifier.Classify(cur).String()),
	}
	if tracker != nil {
		attrs = append(attrs, slog.Int("envDepth", tracker.Depth()))
	}
	m.logger.Debug("Line kept separate", attrs...)
}

func noteLine(t *Tracker, l Line) {
	if t != nil {
		t.Note(l)
	}
}
