package reflow_test

import (
	"log/slog"
	"testing"

	"github.com/stackvity/tex-joiner/internal/testutil"
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stretchr/testify/assert"
)

func TestMerger_Decide(t *testing.T) {
	m := reflow.NewMerger(nil, false)
	tests := []struct {
		acc, cur reflow.Line
		decision reflow.Decision
		rule     string
	}{
		{"Hello", "world.", reflow.JoinWithSpace, "join"},
		{"Hello", "% comment", reflow.KeepSeparate, "candidate-comment-line"},
		{"Hello", "text % comment", reflow.KeepSeparate, "candidate-unescaped-comment"},
		{"Hello", `\section{Intro}`, reflow.KeepSeparate, "candidate-block-opener"},
		{"Hello", `see \begin{quote}`, reflow.KeepSeparate, "candidate-environment-delimiter"},
		{"Hello", "} closes", reflow.KeepSeparate, "candidate-continuation-unsafe"},
		{"Hello", "& cell", reflow.KeepSeparate, "candidate-continuation-unsafe"},
		{"Hello", `\emph{unknown} command`, reflow.KeepSeparate, "candidate-continuation-unsafe"},
		{`\section{Intro}`, "Some text.", reflow.KeepSeparate, "accumulator-block-opener"},
		{`$$ x`, "y", reflow.KeepSeparate, "accumulator-block-opener"},
		{`text \end{quote}`, "more", reflow.KeepSeparate, "accumulator-environment-delimiter"},
		{`Line one \\`, "Line two.", reflow.KeepSeparate, "accumulator-trailing-backslash"},
		{`control space\`, "next", reflow.KeepSeparate, "accumulator-trailing-backslash"},
		{"A % comment", "continued", reflow.KeepSeparate, "accumulator-unescaped-comment"},
		{`50\% of the`, "cases", reflow.JoinWithSpace, "join"},
		{"} closing brace", "then prose", reflow.JoinWithSpace, "join"},
	}
	for _, tc := range tests {
		t.Run(tc.rule+"/"+string(tc.cur), func(t *testing.T) {
			v := m.Decide(tc.acc, tc.cur)
			assert.Equal(t, tc.decision, v.Decision)
			assert.Equal(t, tc.rule, v.Rule)
		})
	}
}

func TestMerger_DecideWithoutSpace(t *testing.T) {
	m := reflow.NewMerger(nil, true)
	v := m.Decide("foo", "bar")
	assert.Equal(t, reflow.JoinWithoutSpace, v.Decision)
	assert.Equal(t, "join-without-space", v.Decision.String())
}

func TestMerger_MergeParagraph(t *testing.T) {
	m := reflow.NewMerger(nil, false)

	res := m.MergeParagraph([]reflow.Line{"The quick", "brown fox   ", "   jumps."}, nil)
	assert.Equal(t, []reflow.Line{"The quick brown fox jumps."}, res.Lines)
	assert.Equal(t, 2, res.Joins)

	res = m.MergeParagraph([]reflow.Line{"Intro line", `\label{sec:a}`, "after label", "continues"}, nil)
	assert.Equal(t, []reflow.Line{"Intro line", `\label{sec:a}`, "after label continues"}, res.Lines)
}

func TestMerger_MergeParagraphDeleteNewline(t *testing.T) {
	m := reflow.NewMerger(nil, true)
	res := m.MergeParagraph([]reflow.Line{"自然", "言語"}, nil)
	assert.Equal(t, []reflow.Line{"自然言語"}, res.Lines)
}

func TestMerger_MergeParagraphPreservesOrder(t *testing.T) {
	m := reflow.NewMerger(nil, false)
	in := []reflow.Line{"a", "% c1", "b", "c", `\item x`, "d"}
	res := m.MergeParagraph(in, nil)
	assert.Equal(t, []reflow.Line{"a", "% c1", "b c", `\item x`, "d"}, res.Lines)
}

// Lines inside a preserved environment are still joined when no per-line rule
// applies. The tracker only counts it.
func TestMerger_JoinsInsidePreservedEnvironmentStillHappen(t *testing.T) {
	m := reflow.NewMerger(nil, false)
	tr := reflow.NewTracker(nil)
	in := []reflow.Line{`\begin{quote}`, "Quoted text that", "wraps here.", `\end{quote}`}

	res := m.MergeParagraph(in, tr)

	assert.Equal(t, []reflow.Line{`\begin{quote}`, "Quoted text that wraps here.", `\end{quote}`}, res.Lines)
	assert.Equal(t, 1, res.Joins)
	assert.Equal(t, 1, res.JoinsInPreserved)
	assert.Zero(t, tr.Depth(), "tracker saw every line")
}

func TestMerger_MergeParagraphEnds(t *testing.T) {
	m := reflow.NewMerger(nil, false)
	res := m.MergeParagraph([]reflow.Line{"a", "b", `\item x`, "% c", "d", "e"}, nil)

	assert.Equal(t, []reflow.Line{"a b", `\item x`, "% c", "d e"}, res.Lines)
	assert.Equal(t, []int{1, 2, 3, 5}, res.Ends)
}

func TestMerger_WithLoggerReportsKeptPairs(t *testing.T) {
	handler, buf := testutil.NewBufferLogger()
	base := reflow.NewMerger(nil, false)
	m := base.WithLogger(slog.New(handler))

	res := m.MergeParagraph([]reflow.Line{"Some text", `\label{x}`, "after"}, reflow.NewTracker(nil))
	assert.Equal(t, []reflow.Line{"Some text", `\label{x}`, "after"}, res.Lines)

	out := buf.String()
	assert.Contains(t, out, "rule=candidate-block-opener")
	assert.Contains(t, out, "line=2")
	assert.Contains(t, out, "rule=accumulator-block-opener")
	assert.Contains(t, out, "line=3")
	assert.Contains(t, out, "envDepth=0")

	buf.Reset()
	base.MergeParagraph([]reflow.Line{"Some text", `\label{x}`}, nil)
	assert.Empty(t, buf.String(), "the original merger stays silent")
}
