// Package cli wires the reflow library to the terminal: Git client, TUI,
// hooks, report printing and metrics.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/tex-joiner/internal/cli/git"
	"github.com/stackvity/tex-joiner/internal/cli/hooks"
	"github.com/stackvity/tex-joiner/internal/cli/metrics"
	"github.com/stackvity/tex-joiner/internal/cli/report"
	"github.com/stackvity/tex-joiner/internal/cli/ui"
	"github.com/stackvity/tex-joiner/pkg/reflow"
	"golang.org/x/term"
)

// Run executes one texjoin run with the process's standard streams.
func Run(ctx context.Context, opts reflow.Options, logger *slog.Logger) error {
	return RunWithIO(ctx, opts, logger, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit streams. Reflowed text in stdout mode goes
// to stdout; the report then goes to stderr so the two never mix. The TUI
// only starts when stderr is a terminal.
func RunWithIO(ctx context.Context, opts reflow.Options, logger *slog.Logger, stdout, stderr io.Writer) error {
	if opts.GitDiffMode != "" && opts.GitDiffMode != reflow.GitDiffModeNone && opts.GitClient == nil {
		opts.GitClient = git.NewGoGitClient(opts.Logger)
	}
	if opts.Output == nil {
		opts.Output = stdout
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		prog    *tea.Program
		tuiProg hooks.TUIProgram
		tuiDone chan struct{}
	)
	tuiActive := opts.TuiEnabled && isTerminal(stderr)
	if tuiActive {
		prog = tea.NewProgram(ui.NewModel(opts.AppVersion, opts.WriteMode), tea.WithOutput(stderr), tea.WithContext(runCtx))
		tuiProg = prog
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				logger.Error("TUI exited with error", slog.Any("error", err))
			}
			// Quitting the TUI early stops the run.
			cancel()
		}()
	}

	recorder := metrics.NewRecorder()
	opts.EventHooks = hooks.Chain(hooks.NewCLIHooks(logger, tuiActive, opts.Verbose, tuiProg), recorder)

	rep, runErr := reflow.Run(runCtx, opts)

	if prog != nil {
		prog.Quit()
		<-tuiDone
	}

	if !rep.Summary.Timestamp.IsZero() {
		out := stdout
		if opts.WriteMode == reflow.WriteModeStdout {
			out = stderr
		}
		// The TUI already showed the text summary.
		if !(tuiActive && (opts.OutputFormat == reflow.OutputFormatText || opts.OutputFormat == "")) {
			if err := report.Print(out, rep, opts.OutputFormat); err != nil {
				logger.Error("Failed to print report", slog.Any("error", err))
				runErr = errors.Join(runErr, err)
			}
		}
	}

	if opts.MetricsFile != "" {
		if err := recorder.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", slog.Any("error", err))
			runErr = errors.Join(runErr, err)
		} else {
			logger.Debug("Metrics written", slog.String("path", opts.MetricsFile))
		}
	}

	if runErr != nil && !errors.Is(runErr, reflow.ErrChangesPending) {
		logger.Error("Run failed", slog.Any("error", runErr))
	}
	return runErr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
