package reflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/stackvity/tex-joiner/pkg/util"
)

// Job is one document handed from the walker to a worker.
type Job struct {
	// Path is absolute.
	Path string
	// DisplayPath is used in reports and hooks: the path as the user gave
	// it, or the walked root joined with the relative path.
	DisplayPath string
	// Explicit is true when the user named the file directly. Explicit
	// files bypass every discovery filter.
	Explicit bool
	// CheckLanguage asks the processor to confirm the language from content
	// because the file name alone was ambiguous.
	CheckLanguage bool
}

// Walker expands the input paths into Jobs. Explicit files are dispatched as
// they are; directories are walked and filtered by ignore patterns, language
// and Git changes.
type Walker struct {
	opts                 *Options
	workerChan           chan<- Job
	hooks                Hooks
	logger               *slog.Logger
	accepted             map[string]bool
	dispatchWarnDuration time.Duration
}

// NewWalker creates a Walker. It does not touch the filesystem.
func NewWalker(opts *Options, workerChan chan<- Job, loggerHandler slog.Handler) (*Walker, error) {
	logger := slog.New(loggerHandler).With(slog.String("component", "walker"))
	if opts.LanguageDetector == nil {
		return nil, fmt.Errorf("%w: walker requires a LanguageDetector", ErrConfigValidation)
	}
	for _, p := range opts.IgnorePatterns {
		if !util.ValidPattern(strings.TrimPrefix(strings.TrimSpace(p), "/")) {
			return nil, fmt.Errorf("%w: invalid ignore pattern %q", ErrConfigValidation, p)
		}
	}
	languages := opts.Languages
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	accepted := make(map[string]bool, len(languages))
	for _, l := range languages {
		accepted[strings.ToLower(strings.TrimSpace(l))] = true
	}
	hooks := opts.EventHooks
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	dispatchWarnDuration := opts.DispatchWarnThreshold
	if dispatchWarnDuration <= 0 {
		dispatchWarnDuration = DefaultDispatchWarnThreshold
	}
	return &Walker{
		opts:                 opts,
		workerChan:           workerChan,
		hooks:                hooks,
		logger:               logger,
		accepted:             accepted,
		dispatchWarnDuration: dispatchWarnDuration,
	}, nil
}

// StartWalk dispatches every input and closes the worker channel when done.
func (w *Walker) StartWalk(ctx context.Context) error {
	defer func() {
		close(w.workerChan)
		w.logger.Debug("Worker channel closed")
	}()

	for _, input := range w.opts.Paths {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", input, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInputNotFound, input, err)
		}
		if !info.IsDir() {
			display := filepath.ToSlash(input)
			w.discovered(display)
			if err := w.dispatch(ctx, Job{Path: absPath, DisplayPath: display, Explicit: true}); err != nil {
				return err
			}
			continue
		}
		if err := w.walkDir(ctx, input, absPath); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("Directory walk cancelled", slog.String("reason", err.Error()))
				return err
			}
			w.logger.Error("Directory walk failed", slog.String("path", input), slog.String("error", err.Error()))
			return fmt.Errorf("directory walk failed: %w", err)
		}
	}
	w.logger.Debug("Input discovery completed")
	return nil
}

func (w *Walker) walkDir(ctx context.Context, root, absRoot string) error {
	w.logger.Info("Starting directory walk", slog.String("path", root))
	matcher, err := newIgnoreMatcher(absRoot, w.opts.IgnorePatterns, w.logger)
	if err != nil {
		return err
	}
	w.logger.Debug("Ignore patterns loaded", slog.Int("count", matcher.patternCount()))
	return filepath.WalkDir(absRoot, w.walkFunc(ctx, root, absRoot, matcher))
}

func (w *Walker) walkFunc(ctx context.Context, root, absRoot string, matcher *ignoreMatcher) fs.WalkDirFunc {
	gitActive := w.opts.GitDiffMode == GitDiffModeDiffOnly || w.opts.GitDiffMode == GitDiffModeSince
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			if path == absRoot && os.IsPermission(err) {
				return fmt.Errorf("permission denied reading input directory %q: %w", root, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.Type()&fs.ModeSymlink != 0 {
			w.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			w.logger.Warn("Could not calculate relative path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		isDir := d.IsDir()
		display := filepath.ToSlash(filepath.Join(root, rel))

		if isDir && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if matcher.Match(rel, isDir) {
			pattern := matcher.LastMatchPattern(rel, isDir)
			w.logger.Debug("Path ignored", slog.String("path", display), slog.Bool("isDir", isDir), slog.String("pattern", pattern))
			w.skipped(display, fmt.Sprintf("Ignored by pattern: %s", pattern))
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}
		if isDir {
			return nil
		}
		if isGenerated(d.Name()) {
			w.logger.Debug("Skipping generated file", slog.String("path", display))
			return nil
		}

		job := Job{Path: path, DisplayPath: display}
		if lang, ok := w.opts.LanguageDetector.DetectByPath(path); ok {
			if !w.accepted[lang] {
				return nil
			}
		} else if slices.ContainsFunc(w.opts.LanguageDetector.Candidates(path), func(l string) bool { return w.accepted[l] }) {
			job.CheckLanguage = true
		} else {
			return nil
		}

		w.discovered(display)
		if gitActive {
			if _, found := w.opts.GitChangedFiles[path]; !found {
				w.logger.Debug("Path excluded by Git diff", slog.String("path", display))
				w.skipped(display, fmt.Sprintf("Excluded by Git diff mode %s", w.opts.GitDiffMode))
				return nil
			}
		}
		return w.dispatch(ctx, job)
	}
}

func (w *Walker) discovered(display string) {
	if hookErr := w.hooks.OnFileDiscovered(display); hookErr != nil {
		w.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", display), slog.String("error", hookErr.Error()))
	}
}

func (w *Walker) skipped(display, message string) {
	if hookErr := w.hooks.OnFileStatusUpdate(display, StatusSkipped, message, 0); hookErr != nil {
		w.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", display), slog.String("error", hookErr.Error()))
	}
}

func (w *Walker) dispatch(ctx context.Context, job Job) error {
	w.logger.Debug("Dispatching file to worker channel", slog.String("path", job.DisplayPath))
	timer := time.NewTimer(w.dispatchWarnDuration)
	defer timer.Stop()
	select {
	case w.workerChan <- job:
	case <-timer.C:
		w.logger.Warn("Worker channel dispatch blocked, workers might be busy or pool too small",
			slog.String("path", job.DisplayPath), slog.Duration("threshold", w.dispatchWarnDuration))
		select {
		case w.workerChan <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// --- ignoreMatcher ---

type ignoreMatcher struct {
	patterns []ignorePattern
	basePath string // absolute walk root
}

type ignorePattern struct {
	pattern     string // slash-separated, without "!", leading "/" or trailing "/"
	origPattern string
	negated     bool
	isDirOnly   bool
	isRooted    bool
	baseAbsPath string // directory of the defining ignore file, or the walk root
}

// newIgnoreMatcher loads the nearest ignore file at or above absRoot, then
// the configured patterns. Later patterns win.
func newIgnoreMatcher(absRoot string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	logger = logger.With(slog.String("component", "ignoreMatcher"))
	m := &ignoreMatcher{basePath: absRoot}

	ignoreFilePath, err := findIgnoreFile(absRoot)
	if err != nil {
		logger.Warn("Error searching for "+IgnoreFileName, slog.String("error", err.Error()))
	}
	if ignoreFilePath != "" {
		filePatterns, err := loadPatternsFromFile(ignoreFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file %s: %w", ignoreFilePath, err)
		}
		m.addPatterns(filePatterns, filepath.Dir(ignoreFilePath))
		logger.Debug("Loaded patterns from ignore file", slog.String("path", ignoreFilePath), slog.Int("count", len(filePatterns)))
	}
	m.addPatterns(configPatterns, absRoot)
	return m, nil
}

func findIgnoreFile(absStartPath string) (string, error) {
	current := absStartPath
	for {
		candidate := filepath.Join(current, IgnoreFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("error checking for ignore file at %s: %w", candidate, err)
		}
		parent := filepath.Dir(current)
		if parent == current || parent == "" {
			return "", nil
		}
		current = parent
	}
}

func loadPatternsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open ignore file %s: %w", filePath, err)
	}
	defer file.Close()
	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", filePath, err)
	}
	return patterns, nil
}

func (m *ignoreMatcher) addPatterns(rawPatterns []string, baseAbsPath string) {
	for _, raw := range rawPatterns {
		p := ignorePattern{origPattern: raw, baseAbsPath: baseAbsPath}
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "!") {
			p.negated = true
			trimmed = strings.TrimSpace(trimmed[1:])
		}
		if strings.HasPrefix(trimmed, "/") {
			p.isRooted = true
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		if strings.HasSuffix(trimmed, "/") {
			p.isDirOnly = true
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		p.pattern = filepath.ToSlash(trimmed)
		if p.pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
}

// lastMatch returns the pattern deciding relativePath, if any.
func (m *ignoreMatcher) lastMatch(relativePath string, isDir bool) (ignorePattern, bool) {
	var last ignorePattern
	matched := false
	for _, p := range m.patterns {
		if !util.MatchesGitignore(p.pattern, p.baseAbsPath, m.basePath, relativePath, p.isRooted) {
			continue
		}
		if p.isDirOnly && !isDir {
			continue
		}
		last, matched = p, true
	}
	return last, matched
}

// Match reports whether relativePath (relative to the walk root) is ignored.
func (m *ignoreMatcher) Match(relativePath string, isDir bool) bool {
	p, ok := m.lastMatch(relativePath, isDir)
	return ok && !p.negated
}

// LastMatchPattern returns the original pattern that ignored relativePath, or "".
func (m *ignoreMatcher) LastMatchPattern(relativePath string, isDir bool) string {
	if p, ok := m.lastMatch(relativePath, isDir); ok && !p.negated {
		return p.origPattern
	}
	return ""
}

func (m *ignoreMatcher) patternCount() int { return len(m.patterns) }
