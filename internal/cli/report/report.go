// Package report prints the final run report in the format chosen with
// --output-format.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const defaultWrapWidth = 100

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("40"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Print writes r to w in the given format. Markdown is rendered for the
// terminal when w is one; otherwise the raw Markdown is written.
func Print(w io.Writer, r reflow.Report, format reflow.OutputFormat) error {
	switch format {
	case reflow.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding JSON report: %w", err)
		}
		return nil
	case reflow.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding YAML report: %w", err)
		}
		return enc.Close()
	case reflow.OutputFormatMarkdown:
		md := Markdown(r)
		if width, ok := terminalWidth(w); ok {
			rendered, err := RenderMarkdown(md, width)
			if err != nil {
				return err
			}
			md = rendered
		}
		_, err := io.WriteString(w, md)
		return err
	case reflow.OutputFormatText, "":
		_, err := io.WriteString(w, Text(r))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Text is the human-readable summary.
func Text(r reflow.Report) string {
	s := r.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s)\n", titleStyle.Render("texjoin summary"), s.WriteMode)
	fmt.Fprintf(&b, "%s %d  %s %d  %s %d  %s %d  %s %d  %s %d\n",
		labelStyle.Render("processed:"), s.ProcessedCount,
		labelStyle.Render("changed:"), s.ChangedCount,
		labelStyle.Render("unchanged:"), s.UnchangedCount,
		labelStyle.Render("cached:"), s.CachedCount,
		labelStyle.Render("skipped:"), s.SkippedCount,
		labelStyle.Render("errors:"), s.ErrorCount,
	)
	fmt.Fprintf(&b, "%s %d  %s %.2fs\n", labelStyle.Render("joins:"), s.TotalJoins, labelStyle.Render("duration:"), s.DurationSeconds)

	changed := changedFiles(r)
	if len(changed) > 0 {
		verb := "reflowed"
		if s.WriteMode == reflow.WriteModeCheck {
			verb = "would reflow"
		}
		for _, f := range changed {
			fmt.Fprintf(&b, "  %s %s (%d joins)\n", changedStyle.Render(verb), f.Path, f.Stats.Joins)
		}
	}
	for _, f := range r.ProcessedFiles {
		for _, w := range f.Warnings {
			fmt.Fprintf(&b, "  %s %s: %s\n", warnStyle.Render("warning"), f.Path, w)
		}
	}
	for _, e := range r.Errors {
		label := "error"
		if e.IsFatal {
			label = "fatal"
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", errorStyle.Render(label), e.Path, e.Error)
	}
	return b.String()
}

// Markdown renders r as a Markdown document.
func Markdown(r reflow.Report) string {
	s := r.Summary
	var b strings.Builder

	b.WriteString("# texjoin report\n\n")
	fmt.Fprintf(&b, "Write mode: `%s`. Finished in %.2fs.\n\n", s.WriteMode, s.DurationSeconds)
	b.WriteString("| Processed | Changed | Unchanged | Cached | Skipped | Errors | Joins |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d | %d |\n",
		s.ProcessedCount, s.ChangedCount, s.UnchangedCount, s.CachedCount, s.SkippedCount, s.ErrorCount, s.TotalJoins)

	if changed := changedFiles(r); len(changed) > 0 {
		b.WriteString("\n## Changed documents\n\n")
		b.WriteString("| Document | Joins | Lines in | Lines out |\n|---|---|---|---|\n")
		for _, f := range changed {
			fmt.Fprintf(&b, "| `%s` | %d | %d | %d |\n", f.Path, f.Stats.Joins, f.Stats.LinesIn, f.Stats.LinesOut)
		}
	}
	if len(r.SkippedFiles) > 0 {
		b.WriteString("\n## Skipped\n\n")
		for _, sk := range r.SkippedFiles {
			fmt.Fprintf(&b, "- `%s`: %s\n", sk.Path, sk.Reason)
		}
	}
	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range r.Errors {
			fatal := ""
			if e.IsFatal {
				fatal = " **(fatal)**"
			}
			fmt.Fprintf(&b, "- `%s`: %s%s\n", e.Path, e.Error, fatal)
		}
	}
	return b.String()
}

// RenderMarkdown renders md for a terminal of the given width.
func RenderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = defaultWrapWidth
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("rendering markdown report: %w", err)
	}
	return out, nil
}

func changedFiles(r reflow.Report) []reflow.FileInfo {
	var out []reflow.FileInfo
	for _, f := range r.ProcessedFiles {
		if f.Changed {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return defaultWrapWidth, true
	}
	return width, true
}
