package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stackvity/tex-joiner/internal/cli"
	"github.com/stackvity/tex-joiner/internal/cli/config"
)

var (
	// Set at build time with -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile     string
	profileName string
	verbose     bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "texjoin [flags] <path>...",
		Short: "Joins hard-wrapped LaTeX paragraphs into single lines.",
		Long: `texjoin rewrites LaTeX sources so that every paragraph sits on one line,
which keeps diffs and review comments readable. Structure is left alone:
comments, sectioning commands, \begin/\end lines, verbatim-like
environments and display math are never merged.

Paths may be files or directories. By default each document is written to
<name>.joined<ext> next to the source; use --inplace, --check or --stdout
to change that.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags(), args)
			if err != nil {
				return err
			}
			return cli.RunWithIO(ctx, opts, logger, cmd.OutOrStdout(), os.Stderr)
		},
	}
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/texjoin/, $HOME/.texjoin/)")
	cmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")
	config.DefineFlags(cmd.Flags())
	return cmd
}

// Execute runs the root command and exits non-zero on any error, including
// pending changes reported by --check.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
