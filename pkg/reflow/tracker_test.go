package reflow_test

import (
	"testing"

	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stretchr/testify/assert"
)

func TestTracker_NestedEnvironments(t *testing.T) {
	tr := reflow.NewTracker(nil)

	tr.Note(`\begin{figure}`)
	tr.Note(`\centering`)
	tr.Note(`\begin{minipage}{0.5\textwidth}`)
	assert.Equal(t, []string{"figure", "minipage"}, tr.Open())
	assert.True(t, tr.InPreserved(), "figure is preserved even though minipage is not")

	tr.Note(`\end{minipage}`)
	assert.Equal(t, 1, tr.Depth())
	tr.Note(`\end{figure}`)
	assert.Equal(t, 0, tr.Depth())
	assert.False(t, tr.InPreserved())
	assert.Zero(t, tr.UnmatchedCloses())
}

func TestTracker_BeginAndEndOnOneLine(t *testing.T) {
	tr := reflow.NewTracker(nil)
	tr.Note(`\begin{center}x\end{center} then \begin{quote}`)
	assert.Equal(t, []string{"quote"}, tr.Open())
}

func TestTracker_UnmatchedCloseIsTolerated(t *testing.T) {
	tr := reflow.NewTracker(nil)
	assert.NotPanics(t, func() {
		tr.Note(`\end{itemize}`)
		tr.Note(`\end{document}`)
	})
	assert.Equal(t, 0, tr.Depth())
	assert.Equal(t, 2, tr.UnmatchedCloses())
}

func TestTracker_CloseDiscardsInnerUnclosed(t *testing.T) {
	tr := reflow.NewTracker(nil)
	tr.Note(`\begin{itemize}`)
	tr.Note(`\begin{foo}`)
	tr.Note(`\end{itemize}`)
	assert.Empty(t, tr.Open())
	assert.Zero(t, tr.UnmatchedCloses())
}

func TestTracker_IgnoresCommentedTokens(t *testing.T) {
	tr := reflow.NewTracker(nil)
	tr.Note(`% \begin{itemize}`)
	tr.Note(`text % \begin{verbatim}`)
	tr.Note(`50\% \begin{quote}`)
	assert.Equal(t, []string{"quote"}, tr.Open())
}

func TestTracker_CustomPreservedSet(t *testing.T) {
	tr := reflow.NewTracker([]string{"proof"})
	tr.Note(`\begin{itemize}`)
	assert.False(t, tr.InPreserved())
	tr.Note(`\begin{proof}`)
	assert.True(t, tr.InPreserved())
}

func TestTracker_DisplayMath(t *testing.T) {
	tr := reflow.NewTracker(nil)
	tr.Note(`\[`)
	assert.True(t, tr.InDisplayMath())
	tr.Note(`a = b`)
	assert.True(t, tr.InDisplayMath())
	tr.Note(`\]`)
	assert.False(t, tr.InDisplayMath())

	tr.Note(`$$ x`)
	assert.True(t, tr.InDisplayMath())
	tr.Note(`y $$`)
	assert.False(t, tr.InDisplayMath())
}

func TestTracker_LineBreakWithSpacingIsNotDisplayMath(t *testing.T) {
	tr := reflow.NewTracker(nil)
	tr.Note(`first row \\[2pt]`)
	assert.False(t, tr.InDisplayMath())
}
