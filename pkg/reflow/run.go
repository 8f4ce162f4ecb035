package reflow

import (
	"context"
	"fmt"
	"log/slog"
)

// Run is the library entry point: it reflows every document reachable from
// opts.Paths and returns the report.
//
// In check mode a run that would change at least one document returns
// ErrChangesPending alongside a complete report.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)
	logger.Debug("Starting texjoin library execution", slog.String("version", opts.AppVersion))

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		logger.Error("Engine initialization failed", slog.String("error", err.Error()))
		return Report{}, err
	}
	report, err := engine.Run()
	if err != nil {
		return report, err
	}
	if report.Summary.WriteMode == WriteModeCheck && report.Summary.ChangedCount > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrChangesPending, report.Summary.ChangedCount, report.Summary.ProcessedCount)
	}
	return report, nil
}
