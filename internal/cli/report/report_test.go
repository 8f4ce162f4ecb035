package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() reflow.Report {
	return reflow.Report{
		Summary: reflow.ReportSummary{
			WriteMode:       reflow.WriteModeCheck,
			ProcessedCount:  3,
			ChangedCount:    2,
			UnchangedCount:  1,
			SkippedCount:    1,
			ErrorCount:      1,
			TotalJoins:      7,
			DurationSeconds: 0.5,
			Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		ProcessedFiles: []reflow.FileInfo{
			{Path: "thesis/b.tex", Changed: true, Stats: reflow.Stats{Joins: 5, LinesIn: 9, LinesOut: 4}},
			{Path: "thesis/a.tex", Changed: true, Stats: reflow.Stats{Joins: 2, LinesIn: 3, LinesOut: 1},
				Warnings: []string{"environment proof not closed"}},
			{Path: "thesis/c.tex"},
		},
		SkippedFiles: []reflow.SkippedInfo{{Path: "thesis/fig.tex", Reason: "binary_file"}},
		Errors:       []reflow.ErrorInfo{{Path: "thesis/d.tex", Error: "permission denied"}},
	}
}

func TestPrint_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), reflow.OutputFormatJSON))

	var decoded reflow.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 7, decoded.Summary.TotalJoins)
	assert.Len(t, decoded.ProcessedFiles, 3)
	assert.Contains(t, buf.String(), `"writeMode": "check"`)
}

func TestPrint_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), reflow.OutputFormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	summary, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, summary["changedCount"])
	assert.Contains(t, buf.String(), "reason: binary_file")
}

func TestPrint_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), reflow.OutputFormatText))
	out := buf.String()

	assert.Contains(t, out, "texjoin summary")
	assert.Contains(t, out, "(check)")
	assert.Contains(t, out, "would reflow")
	assert.Contains(t, out, "thesis/b.tex (5 joins)")
	assert.Contains(t, out, "environment proof not closed")
	assert.Contains(t, out, "thesis/d.tex: permission denied")
	assert.NotContains(t, out, "thesis/c.tex")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("thesis/a.tex (")), bytes.Index(buf.Bytes(), []byte("thesis/b.tex (")))
}

func TestPrint_TextEmptyFormatDefaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), ""))
	assert.Contains(t, buf.String(), "texjoin summary")
}

func TestPrint_MarkdownRawWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, sampleReport(), reflow.OutputFormatMarkdown))
	out := buf.String()

	assert.Contains(t, out, "# texjoin report")
	assert.Contains(t, out, "| 3 | 2 | 1 | 0 | 1 | 1 | 7 |")
	assert.Contains(t, out, "| `thesis/b.tex` | 5 | 9 | 4 |")
	assert.Contains(t, out, "- `thesis/fig.tex`: binary_file")
	assert.Contains(t, out, "## Errors")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown(Markdown(sampleReport()), 0)
	require.NoError(t, err)
	assert.Contains(t, out, "texjoin report")
}

func TestPrint_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Print(&buf, sampleReport(), "xml"))
}
