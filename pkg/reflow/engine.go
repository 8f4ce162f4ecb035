package reflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackvity/tex-joiner/pkg/reflow/cache"
	"github.com/stackvity/tex-joiner/pkg/reflow/encoding"
	"github.com/stackvity/tex-joiner/pkg/reflow/language"
)

// ProcessorFactory creates the FileProcessor shared by all workers.
type ProcessorFactory func(
	opts *Options,
	loggerHandler slog.Handler,
	cacheMgr cache.CacheManager,
	langDet language.LanguageDetector,
	encHandler encoding.EncodingHandler,
) *FileProcessor

// WalkerFactory creates the Walker that feeds the workers.
type WalkerFactory func(
	opts *Options,
	workerChan chan<- Job,
	loggerHandler slog.Handler,
) (*Walker, error)

// Engine orchestrates a run: discovery, the worker pool and report aggregation.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	cacheManager     cache.CacheManager
	processorFactory ProcessorFactory
	walkerFactory    WalkerFactory
	processor        *FileProcessor
	aggregator       *reportAggregator
	ctx              context.Context
	cancelFunc       context.CancelFunc
	concurrency      int
	totalScanned     atomic.Int64
	fatalOccurred    atomic.Bool
}

// NewEngine validates opts, resolves defaults and prepares the cache and Git
// filter. Missing inputs fail with ErrInputNotFound before anything is written.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if err := resolveOptions(&opts); err != nil {
		return nil, err
	}

	if opts.LanguageDetector == nil {
		opts.LanguageDetector = language.NewGoEnryDetector(opts.LanguageMappingsOverride)
		logger.Debug("LanguageDetector not provided, using default GoEnryDetector.")
	}
	if opts.EncodingHandler == nil {
		opts.EncodingHandler = encoding.NewGoCharsetEncodingHandler(opts.DefaultEncoding)
		logger.Debug("EncodingHandler not provided, using default GoCharsetEncodingHandler.")
	}

	if opts.GitDiffMode != GitDiffModeNone {
		if opts.GitClient == nil {
			return nil, fmt.Errorf("%w: GitClient required but not provided for git diff mode '%s'", ErrConfigValidation, opts.GitDiffMode)
		}
		if opts.GitChangedFiles == nil {
			changed, err := collectGitChanges(&opts)
			if err != nil {
				return nil, err
			}
			opts.GitChangedFiles = changed
			logger.Debug("Git changed files collected", slog.String("mode", string(opts.GitDiffMode)), slog.Int("count", len(changed)))
		}
	}

	opts.CacheManager = resolveCacheManager(&opts, logger)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		logger.Debug("Concurrency auto-detected", "count", concurrency)
	}
	if opts.WriteMode == WriteModeStdout {
		concurrency = 1
	}
	opts.Concurrency = concurrency

	processorFactory := opts.ProcessorFactory
	if processorFactory == nil {
		processorFactory = NewFileProcessor
	}
	walkerFactory := opts.WalkerFactory
	if walkerFactory == nil {
		walkerFactory = NewWalker
	}

	engineCtx, cancelFunc := context.WithCancel(ctx)
	return &Engine{
		opts:             &opts,
		logger:           logger,
		cacheManager:     opts.CacheManager,
		processorFactory: processorFactory,
		walkerFactory:    walkerFactory,
		aggregator:       newReportAggregator(),
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
		concurrency:      concurrency,
	}, nil
}

// resolveOptions fills derived fields and rejects inconsistent settings.
func resolveOptions(opts *Options) error {
	if len(opts.Paths) == 0 {
		return fmt.Errorf("%w: at least one input path is required", ErrConfigValidation)
	}
	for _, p := range opts.Paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrInputNotFound, p)
			}
			return fmt.Errorf("%w: cannot access input path '%s': %w", ErrConfigValidation, p, err)
		}
	}
	if opts.WriteMode == "" {
		mode, err := DeriveWriteMode(opts.InPlace, opts.Check, opts.ToStdout)
		if err != nil {
			return err
		}
		opts.WriteMode = mode
	}
	if opts.WriteMode == WriteModeStdout {
		if len(opts.Paths) != 1 {
			return fmt.Errorf("%w: --stdout takes exactly one input file", ErrConfigValidation)
		}
		if info, _ := os.Stat(opts.Paths[0]); info.IsDir() {
			return fmt.Errorf("%w: --stdout requires a file, not a directory", ErrConfigValidation)
		}
	}
	switch opts.OnErrorMode {
	case "":
		opts.OnErrorMode = DefaultOnErrorMode
	case OnErrorContinue, OnErrorStop:
	default:
		return fmt.Errorf("%w: invalid onError mode '%s'", ErrConfigValidation, opts.OnErrorMode)
	}
	if opts.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
	}
	if opts.GitDiffMode == "" {
		opts.GitDiffMode = GitDiffModeNone
	}
	return nil
}

// collectGitChanges asks the GitClient about every input directory, and about
// the parent directory of every explicit file.
func collectGitChanges(opts *Options) (map[string]struct{}, error) {
	changed := make(map[string]struct{})
	seen := make(map[string]bool)
	for _, p := range opts.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			abs = filepath.Dir(abs)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		files, err := opts.GitClient.GetChangedFiles(abs, string(opts.GitDiffMode), opts.GitConfig.SinceRef)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			changed[filepath.Clean(f)] = struct{}{}
		}
	}
	return changed, nil
}

// defaultCachePath places the cache in the first input directory, or next to
// the first input file.
func defaultCachePath(paths []string) string {
	first, err := filepath.Abs(paths[0])
	if err != nil {
		first = paths[0]
	}
	if info, err := os.Stat(first); err == nil && info.IsDir() {
		return filepath.Join(first, cache.FileName)
	}
	return filepath.Join(filepath.Dir(first), cache.FileName)
}

func resolveCacheManager(opts *Options, logger *slog.Logger) cache.CacheManager {
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = defaultCachePath(opts.Paths)
	}
	if opts.ClearCache {
		if err := cache.Remove(opts.CacheFilePath); err != nil {
			logger.Warn("Failed to clear cache file", slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		} else {
			logger.Info("Cache file cleared", slog.String("path", opts.CacheFilePath))
		}
	}
	if !opts.CacheEnabled || !opts.WriteMode.writes() {
		if opts.CacheEnabled {
			logger.Debug("Cache not used in this write mode", slog.String("mode", string(opts.WriteMode)))
		}
		opts.CacheEnabled = false
		return &NoOpCacheManager{}
	}

	mgr := opts.CacheManager
	if mgr == nil {
		mgr = cache.NewFileCacheManager(opts.Logger, opts.AppVersion, opts.CacheFormat)
	}
	if err := mgr.Load(opts.CacheFilePath); err != nil {
		logger.Error("Critical error interacting with cache file, proceeding without cache.",
			slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		opts.CacheEnabled = false
		return &NoOpCacheManager{}
	}
	return mgr
}

// Options returns the resolved options the engine runs with.
func (e *Engine) Options() Options { return *e.opts }

// Run processes every input and returns the aggregated report.
//
// The error is the context error on cancellation, the walk error when
// discovery failed, or the first fatal file error when OnErrorMode is stop.
// Per-file errors in continue mode only appear in the report.
func (e *Engine) Run() (report Report, finalErr error) {
	startTime := time.Now()
	e.logger.Info("Starting reflow run",
		slog.Int("inputs", len(e.opts.Paths)),
		slog.String("mode", string(e.opts.WriteMode)),
		slog.Int("concurrency", e.concurrency),
		slog.Bool("cacheEnabled", e.opts.CacheEnabled))

	// report is always assembled here, including on early returns.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during engine run", "panicValue", r)
			e.fatalOccurred.Store(true)
			if finalErr == nil {
				finalErr = fmt.Errorf("panic during execution: %v", r)
			}
		}
		e.cancelFunc()

		if e.opts.CacheEnabled {
			e.logger.Debug("Persisting cache index", "path", e.opts.CacheFilePath)
			if persistErr := e.cacheManager.Persist(e.opts.CacheFilePath); persistErr != nil {
				e.logger.Error("Failed to persist cache index", slog.String("path", e.opts.CacheFilePath), slog.String("error", persistErr.Error()))
				if finalErr == nil {
					finalErr = persistErr
				}
			}
		}

		report = e.aggregator.getReport(e.opts, startTime, e.totalScanned.Load(), e.fatalOccurred.Load())
		e.logger.Info("Reflow run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("processed", report.Summary.ProcessedCount),
			slog.Int("changed", report.Summary.ChangedCount),
			slog.Int("cached", report.Summary.CachedCount),
			slog.Int("skipped", report.Summary.SkippedCount),
			slog.Int("errors", report.Summary.ErrorCount),
			slog.Bool("fatalErrorOccurred", report.Summary.FatalErrorOccurred),
		)
		if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	e.processor = e.processorFactory(e.opts, e.logger.Handler(), e.cacheManager, e.opts.LanguageDetector, e.opts.EncodingHandler)

	workerChan := make(chan Job, e.concurrency)
	resultsChan := make(chan any, e.concurrency)
	var wg sync.WaitGroup

	aggregatorDone := make(chan struct{})
	go e.aggregateResults(resultsChan, aggregatorDone)

	walker, walkInitErr := e.walkerFactory(e.opts, workerChan, e.logger.Handler())
	if walkInitErr != nil {
		e.logger.Error("Failed to initialize walker", slog.String("error", walkInitErr.Error()))
		e.fatalOccurred.Store(true)
		close(resultsChan)
		<-aggregatorDone
		return Report{}, fmt.Errorf("walker initialization failed: %w", walkInitErr)
	}

	e.startWorkers(&wg, workerChan, resultsChan)

	walkErr := walker.StartWalk(e.ctx)
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		e.logger.Error("Input discovery failed", slog.String("error", walkErr.Error()))
		if !e.fatalOccurred.Swap(true) {
			e.cancelFunc()
		}
	} else {
		walkErr = nil
	}

	wg.Wait()
	close(resultsChan)
	<-aggregatorDone

	switch {
	case walkErr != nil:
		finalErr = walkErr
	case e.fatalOccurred.Load():
		if firstFatal := e.aggregator.getFirstFatalError(); firstFatal != nil {
			finalErr = fmt.Errorf("processing stopped due to fatal error: %w", firstFatal)
		} else if ctxErr := e.ctx.Err(); ctxErr != nil {
			finalErr = ctxErr
		} else {
			finalErr = errors.New("processing stopped due to fatal error")
		}
	case e.ctx.Err() != nil:
		e.logger.Info("Processing run cancelled", slog.String("reason", e.ctx.Err().Error()))
		e.fatalOccurred.Store(true)
		finalErr = e.ctx.Err()
	}
	return Report{}, finalErr
}

func (e *Engine) startWorkers(wg *sync.WaitGroup, workerChan <-chan Job, resultsChan chan<- any) {
	e.logger.Debug("Starting worker pool", "count", e.concurrency)
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.processFilesWorker(wg, i, workerChan, resultsChan)
	}
}

func (e *Engine) signalFatal() {
	if !e.fatalOccurred.Swap(true) {
		e.cancelFunc()
	}
}

func (e *Engine) processFilesWorker(wg *sync.WaitGroup, workerID int, workerChan <-chan Job, resultsChan chan<- any) {
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered in worker", "panicValue", r)
			resultsChan <- ErrorInfo{Path: "unknown (panic)", Error: fmt.Sprintf("panic: %v", r), IsFatal: true}
			e.signalFatal()
		}
		wg.Done()
	}()
	wLogger.Debug("Worker started")

	for {
		select {
		case job, ok := <-workerChan:
			if !ok {
				wLogger.Debug("Worker shutting down (channel closed)")
				return
			}
			e.status(job.DisplayPath, StatusProcessing, "", 0)
			start := time.Now()
			result, status, err := e.processor.ProcessFile(e.ctx, job)

			message := ""
			if err != nil {
				isFatal := e.opts.OnErrorMode == OnErrorStop || errors.Is(err, context.Canceled)
				info, ok := result.(ErrorInfo)
				if !ok {
					info = ErrorInfo{Path: job.DisplayPath, Error: err.Error()}
				}
				info.IsFatal = isFatal
				result = info
				message = err.Error()
				if isFatal {
					wLogger.Info("Worker detected fatal error condition, signalling stop", "path", job.DisplayPath, "error", err)
					e.signalFatal()
				}
			} else if s, ok := result.(SkippedInfo); ok {
				message = s.Reason
			}
			e.status(job.DisplayPath, status, message, time.Since(start))
			resultsChan <- result

		case <-e.ctx.Done():
			wLogger.Debug("Worker shutting down (context cancelled)")
			return
		}
	}
}

func (e *Engine) status(path string, status Status, message string, d time.Duration) {
	if hookErr := e.opts.EventHooks.OnFileStatusUpdate(path, status, message, d); hookErr != nil {
		e.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", path), slog.String("error", hookErr.Error()))
	}
}

func (e *Engine) aggregateResults(resultsChan <-chan any, done chan<- struct{}) {
	defer close(done)
	scanCount := int64(0)
	for result := range resultsChan {
		scanCount++
		switch r := result.(type) {
		case FileInfo:
			e.aggregator.addProcessed(r)
		case SkippedInfo:
			e.aggregator.addSkipped(r)
		case ErrorInfo:
			e.aggregator.addError(r)
		default:
			e.logger.Warn("Aggregator received unknown result type", "type", fmt.Sprintf("%T", result))
		}
	}
	e.totalScanned.Store(scanCount)
	e.logger.Debug("Result aggregator finished", "resultsProcessed", scanCount)
}

// --- reportAggregator ---

type reportAggregator struct {
	mu             sync.Mutex
	processedFiles []FileInfo
	skippedFiles   []SkippedInfo
	errors         []ErrorInfo
}

func newReportAggregator() *reportAggregator {
	return &reportAggregator{
		processedFiles: make([]FileInfo, 0, 64),
		skippedFiles:   make([]SkippedInfo, 0, 16),
		errors:         make([]ErrorInfo, 0, 8),
	}
}

func (a *reportAggregator) addProcessed(info FileInfo) {
	a.mu.Lock()
	a.processedFiles = append(a.processedFiles, info)
	a.mu.Unlock()
}

func (a *reportAggregator) addSkipped(info SkippedInfo) {
	a.mu.Lock()
	a.skippedFiles = append(a.skippedFiles, info)
	a.mu.Unlock()
}

func (a *reportAggregator) addError(info ErrorInfo) {
	a.mu.Lock()
	a.errors = append(a.errors, info)
	a.mu.Unlock()
}

// getFirstFatalError returns the first fatal file error that is not a
// cancellation echo.
func (a *reportAggregator) getFirstFatalError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.errors {
		if e.IsFatal && e.Error != context.Canceled.Error() {
			return fmt.Errorf("fatal error processing file '%s': %s", e.Path, e.Error)
		}
	}
	return nil
}

func (a *reportAggregator) getReport(opts *Options, startTime time.Time, totalScanned int64, fatalOccurred bool) Report {
	a.mu.Lock()
	processed := append([]FileInfo(nil), a.processedFiles...)
	skipped := append([]SkippedInfo(nil), a.skippedFiles...)
	errorsList := append([]ErrorInfo(nil), a.errors...)
	a.mu.Unlock()

	sort.Slice(processed, func(i, j int) bool { return processed[i].Path < processed[j].Path })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })
	sort.Slice(errorsList, func(i, j int) bool { return errorsList[i].Path < errorsList[j].Path })

	summary := ReportSummary{
		Inputs:             append([]string(nil), opts.Paths...),
		WriteMode:          opts.WriteMode,
		ProfileUsed:        opts.ProfileName,
		ConfigFilePath:     opts.ConfigFilePath,
		TotalFilesScanned:  int(totalScanned),
		ProcessedCount:     len(processed),
		SkippedCount:       len(skipped),
		ErrorCount:         len(errorsList),
		FatalErrorOccurred: fatalOccurred,
		DurationSeconds:    time.Since(startTime).Seconds(),
		CacheEnabled:       opts.CacheEnabled,
		Concurrency:        opts.Concurrency,
		Timestamp:          time.Now().UTC(),
		SchemaVersion:      ReportSchemaVersion,
	}
	for _, f := range processed {
		switch {
		case f.CacheStatus == CacheStatusHit:
			summary.CachedCount++
		case f.Changed:
			summary.ChangedCount++
		default:
			summary.UnchangedCount++
		}
		if len(f.Warnings) > 0 {
			summary.WarningCount++
		}
		summary.TotalJoins += f.Stats.Joins
	}
	return Report{
		Summary:        summary,
		ProcessedFiles: processed,
		SkippedFiles:   skipped,
		Errors:         errorsList,
	}
}
